package bptfile

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// flock acquires an advisory lock on the index file: exclusive for writers,
// shared for read-only opens.
func flock(db *DB) error {
	flag := unix.LOCK_SH
	if !db.readOnly {
		flag = unix.LOCK_EX
	}

	err := unix.Flock(int(db.pager.file.Fd()), flag|unix.LOCK_NB)
	if err == nil {
		return nil
	} else if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
		return ErrWriteByOther
	}
	return errors.Wrap(err, "flock failed")
}

// waitflock retries flock until it succeeds or the timeout expires. A zero
// timeout waits indefinitely.
func waitflock(db *DB, timeout time.Duration) error {
	var t time.Time
	for {
		if t.IsZero() {
			t = time.Now()
		} else if timeout > 0 && time.Since(t) > timeout {
			return ErrWriteByOther
		}
		err := flock(db)
		if !errors.Is(err, ErrWriteByOther) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// funlock releases an advisory lock on the index file.
func funlock(db *DB) error {
	return unix.Flock(int(db.pager.file.Fd()), unix.LOCK_UN)
}
