package bptfile

import (
	"os"

	"github.com/pkg/errors"
)

// pager owns the backing file handle and performs all page granular I/O.
// Pages are allocated bump-pointer style by appending to the file; nothing
// is ever reclaimed.
type pager struct {
	path   string
	file   *os.File
	noSync bool
}

func (p *pager) open(path string, flag int, mode os.FileMode) error {
	p.path = path
	f, err := os.OpenFile(path, flag, mode)
	if err != nil {
		return errors.Wrap(err, "open index file")
	}
	p.file = f
	return nil
}

func (p *pager) close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	if err != nil {
		return errors.Wrap(err, "close index file")
	}
	return nil
}

func (p *pager) fileSize() (int64, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat index file")
	}
	return info.Size(), nil
}

// ensureFirstPage extends a file shorter than one page with a zero filled
// superblock page.
func (p *pager) ensureFirstPage() error {
	size, err := p.fileSize()
	if err != nil {
		return err
	}
	if size >= PageSize {
		return nil
	}
	var zero [PageSize]byte
	if _, err := p.file.WriteAt(zero[:], 0); err != nil {
		return errors.Wrap(err, "initialize superblock page")
	}
	return p.sync()
}

// allocatePage appends a zero filled page and returns its id.
func (p *pager) allocatePage() (PageID, error) {
	size, err := p.fileSize()
	if err != nil {
		return 0, err
	}
	var zero [PageSize]byte
	if _, err := p.file.WriteAt(zero[:], size); err != nil {
		return 0, errors.Wrap(err, "allocate page")
	}
	if err := p.sync(); err != nil {
		return 0, err
	}
	return PageID(size / PageSize), nil
}

func (p *pager) readPage(pid PageID, out []byte) error {
	if _, err := p.file.ReadAt(out[:PageSize], int64(pid)*PageSize); err != nil {
		return errors.Wrapf(err, "read page %d", pid)
	}
	return nil
}

func (p *pager) writePage(pid PageID, in []byte) error {
	if _, err := p.file.WriteAt(in[:PageSize], int64(pid)*PageSize); err != nil {
		return errors.Wrapf(err, "write page %d", pid)
	}
	return p.sync()
}

func (p *pager) sync() error {
	if p.noSync {
		return nil
	}
	if err := fdatasync(p.file); err != nil {
		return errors.Wrap(err, "sync index file")
	}
	return nil
}
