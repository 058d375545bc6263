// Package mmap provides read-only memory-mapped files
package mmap

import (
	"io"
	"os"
	"sync"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Reader is a read-only memory-mapped file. It implements io.ReaderAt and
// is safe for concurrent reads until Close.
type Reader struct {
	file   *os.File
	data   []byte
	mapped bool

	mu     sync.RWMutex
	closed bool
}

// Open maps the file at path. Empty files are valid and read as empty.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to open file").
			WithDetail("path", path)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to stat file").
			WithDetail("path", path)
	}

	r := &Reader{file: file}
	if size := stat.Size(); size > 0 {
		r.data, r.mapped, err = mapFile(file, size)
		if err != nil {
			file.Close()
			return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to mmap file").
				WithDetail("path", path)
		}
		adviseRandom(r.data)
	}
	return r, nil
}

// Size returns the file size in bytes
func (r *Reader) Size() int64 {
	return int64(len(r.data))
}

// ReadAt copies len(p) bytes starting at off into p
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "negative offset %d", off)
	}
	if off >= int64(len(r.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (r *Reader) Bytes() []byte {
	adviseSequential(r.data)
	return r.data
}

// Close unmaps the file and closes it. Calling Close twice is a no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var unmapErr error
	if r.mapped {
		unmapErr = unmapFile(r.data)
	}
	r.data = nil
	closeErr := r.file.Close()

	if unmapErr != nil {
		return tabulaerrors.Wrap(unmapErr, tabulaerrors.ErrorTypeIO, "failed to unmap file")
	}
	if closeErr != nil {
		return tabulaerrors.Wrap(closeErr, tabulaerrors.ErrorTypeIO, "failed to close file")
	}
	return nil
}
