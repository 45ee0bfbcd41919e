package bptfile

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned by Get when no entry exists for the key.
	ErrNotFound = errors.New("key not found")

	// ErrUnsortedInput is returned by BulkLoad when the input stream
	// yields a key smaller than its predecessor.
	ErrUnsortedInput = errors.New("bulk load input not sorted by key")

	// ErrCorruptPage is returned when a page read from disk fails header
	// validation (bad magic or unknown page kind discriminator).
	ErrCorruptPage = errors.New("corrupt page")

	ErrWriteByOther     = errors.New("db opened with write mode by another process")
	ErrDatabaseNotOpen  = errors.New("database not open")
	ErrDatabaseReadOnly = errors.New("database is in read-only mode")
)
