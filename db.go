package bptfile

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Options represents the options that can be set when opening an index file.
type Options struct {
	// Timeout is the amount of time to wait to obtain the file lock.
	// When set to zero it will fail immediately if another writer holds
	// the lock.
	Timeout time.Duration

	// Open the index in read-only mode. Uses a shared flock so several
	// readers may coexist; mutating operations fail with
	// ErrDatabaseReadOnly.
	ReadOnly bool

	// NoSync skips the flush after each page write. Useful when bulk
	// loading data where the load can simply be restarted on failure.
	NoSync bool

	// StrictMode runs a full structural Check after every mutating
	// operation and panics if the tree is inconsistent. Large performance
	// impact, debugging only.
	StrictMode bool
}

var DefaultOptions = &Options{
	Timeout: 0,
}

// DB is a single-file B+ tree index mapping int32 keys to fixed 8 byte
// values. All operations are synchronous and run under one writer lock;
// the file is held with an advisory flock for the lifetime of the handle.
type DB struct {
	StrictMode bool

	pager    pager
	sb       superBlock
	sbDirty  bool
	opened   bool
	readOnly bool

	rwlock sync.Mutex
}

// Open opens or creates the index file at path. A file whose superblock
// does not carry the expected magic is treated as uninitialized and gets a
// fresh superblock plus an empty root leaf.
func Open(path string, mode os.FileMode, options *Options) (*DB, error) {
	db := &DB{opened: true}

	if options == nil {
		options = DefaultOptions
	}
	db.StrictMode = options.StrictMode
	db.readOnly = options.ReadOnly
	db.pager.noSync = options.NoSync

	flag := os.O_RDWR
	if options.ReadOnly {
		flag = os.O_RDONLY
	}

	if err := db.pager.open(path, flag, mode); err != nil {
		if os.IsNotExist(errors.Cause(err)) && db.readOnly {
			return nil, err
		}
		if err = db.pager.open(path, flag|os.O_CREATE, mode); err != nil {
			return nil, err
		}
	}

	lock := func() error {
		if options.Timeout > 0 {
			return waitflock(db, options.Timeout)
		}
		return flock(db)
	}
	if err := lock(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if !db.readOnly {
		if err := db.pager.ensureFirstPage(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := db.loadSuper(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the file lock and closes the backing file.
func (db *DB) Close() error {
	if !db.opened {
		return nil
	}
	db.opened = false

	if db.pager.file != nil {
		if !db.readOnly {
			if err := funlock(db); err != nil {
				log.WithError(err).Warn("funlock failed on close")
			}
		}
		return db.pager.close()
	}
	return nil
}

func (db *DB) loadSuper() error {
	var buf [PageSize]byte
	if err := db.pager.readPage(0, buf[:]); err != nil {
		return err
	}
	db.sb = unmarshalSuper(buf[:])
	if db.sb.magic == Magic {
		return nil
	}
	if db.readOnly {
		return errors.Wrap(ErrCorruptPage, "superblock magic mismatch")
	}

	// Fresh or foreign file: initialize superblock and an empty root leaf.
	db.sb = superBlock{magic: Magic, pageCount: 1}
	rootLeaf, err := db.newLeaf(0)
	if err != nil {
		return err
	}
	db.sb.root = rootLeaf
	if err := db.writeSuper(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"path": db.pager.path,
		"root": rootLeaf,
	}).Info("initialized fresh index file")
	return nil
}

func (db *DB) writeSuper() error {
	var buf [PageSize]byte
	marshalSuper(&db.sb, buf[:])
	if err := db.pager.writePage(0, buf[:]); err != nil {
		return err
	}
	db.sbDirty = false
	return nil
}

// flushSuper persists the superblock if an allocation or root change left
// it out of date on disk.
func (db *DB) flushSuper() error {
	if !db.sbDirty {
		return nil
	}
	return db.writeSuper()
}

// allocPage allocates a page through the pager and bumps the superblock
// page count.
func (db *DB) allocPage() (PageID, error) {
	pid, err := db.pager.allocatePage()
	if err != nil {
		return 0, err
	}
	db.sb.pageCount++
	db.sbDirty = true
	return pid, nil
}

func (db *DB) newLeaf(parent PageID) (PageID, error) {
	pid, err := db.allocPage()
	if err != nil {
		return 0, err
	}
	p := &leafPage{parent: parent}
	if err := db.writeLeaf(pid, p); err != nil {
		return 0, err
	}
	return pid, nil
}

func (db *DB) newInternal(parent PageID) (PageID, error) {
	pid, err := db.allocPage()
	if err != nil {
		return 0, err
	}
	n := &internalPage{parent: parent}
	if err := db.writeInternal(pid, n); err != nil {
		return 0, err
	}
	return pid, nil
}

func (db *DB) readLeaf(pid PageID) (*leafPage, error) {
	var buf [PageSize]byte
	if err := db.pager.readPage(pid, buf[:]); err != nil {
		return nil, err
	}
	return unmarshalLeaf(buf[:])
}

func (db *DB) writeLeaf(pid PageID, p *leafPage) error {
	var buf [PageSize]byte
	marshalLeaf(p, buf[:])
	return db.pager.writePage(pid, buf[:])
}

func (db *DB) readInternal(pid PageID) (*internalPage, error) {
	var buf [PageSize]byte
	if err := db.pager.readPage(pid, buf[:]); err != nil {
		return nil, err
	}
	return unmarshalInternal(buf[:])
}

func (db *DB) writeInternal(pid PageID, n *internalPage) error {
	var buf [PageSize]byte
	marshalInternal(n, buf[:])
	return db.pager.writePage(pid, buf[:])
}

// Get returns the 8 byte value stored under key, or ErrNotFound.
func (db *DB) Get(key int32) ([]byte, error) {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()

	if !db.opened {
		return nil, ErrDatabaseNotOpen
	}

	leafID, err := db.findLeaf(key)
	if err != nil {
		return nil, err
	}
	leaf, err := db.readLeaf(leafID)
	if err != nil {
		return nil, err
	}
	pos := leaf.search(key)
	if pos < int(leaf.count) && leaf.slots[pos].key == key {
		out := make([]byte, ValueSize)
		copy(out, leaf.slots[pos].value[:])
		return out, nil
	}
	return nil, ErrNotFound
}

// Insert upserts key with value normalized to exactly 8 bytes.
func (db *DB) Insert(key int32, value []byte) error {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()

	if !db.opened {
		return ErrDatabaseNotOpen
	}
	if db.readOnly {
		return ErrDatabaseReadOnly
	}

	v8 := normalizeValue(value)
	if err := db.insert(key, v8); err != nil {
		return err
	}
	if err := db.flushSuper(); err != nil {
		return err
	}
	db.strictCheck()
	return nil
}

func (db *DB) strictCheck() {
	if !db.StrictMode {
		return
	}
	if err := db.check(); err != nil {
		panic(err)
	}
}
