package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/mmap"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// LocalStore reads and writes files on the local file system
type LocalStore struct {
	logger *zap.Logger
}

// NewLocalStore creates a local store
func NewLocalStore(logger *zap.Logger) *LocalStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{logger: logger.With(zap.String("component", "local_store"))}
}

// Open memory-maps the file
func (s *LocalStore) Open(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "open canceled")
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// OpenStream opens the file for sequential reading
func (s *LocalStore) OpenStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "open canceled")
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to open file").
			WithDetail("path", path)
	}
	return f, nil
}

// Create opens a temporary file next to path. Commit syncs it and renames
// it over path.
func (s *LocalStore) Create(ctx context.Context, path string) (Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "create canceled")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to create directory").
			WithDetail("path", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to create temporary file").
			WithDetail("path", path)
	}
	return &fileSink{tmp: tmp, path: path, logger: s.logger}, nil
}

type fileSink struct {
	tmp    *os.File
	path   string
	logger *zap.Logger
	done   bool
}

func (f *fileSink) Write(p []byte) (int, error) {
	n, err := f.tmp.Write(p)
	if err != nil {
		return n, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write file").
			WithDetail("path", f.path)
	}
	return n, nil
}

func (f *fileSink) Commit(ctx context.Context) error {
	if f.done {
		return tabulaerrors.New(tabulaerrors.ErrorTypeInternal, "sink already finished")
	}
	if err := ctx.Err(); err != nil {
		return tabulaerrors.FromContext(err, "commit canceled")
	}
	if err := f.tmp.Sync(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to sync file").WithDetail("path", f.path)
	}
	if err := f.tmp.Close(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to close file").WithDetail("path", f.path)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		os.Remove(f.tmp.Name())
		f.done = true
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to rename file").WithDetail("path", f.path)
	}
	f.done = true
	f.logger.Debug("file committed", zap.String("path", f.path))
	return nil
}

func (f *fileSink) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.tmp.Close()
	if err := os.Remove(f.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to remove temporary file").
			WithDetail("path", f.tmp.Name())
	}
	f.logger.Debug("file aborted", zap.String("path", f.path))
	return nil
}
