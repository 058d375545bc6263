// Package storage opens inputs and publishes outputs on the local file
// system or S3.
//
// Outputs are written through a Sink that makes the object visible only on
// Commit: local files are renamed into place from a temporary file, S3
// objects are uploaded in one request. Abort discards everything, so a
// failed run never leaves a partial output behind.
package storage

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Source is a random-access input of known size
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Sink is an output that becomes visible only after Commit. Abort after a
// successful Commit is a no-op, so callers may always defer it.
type Sink interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort() error
}

// Store opens and creates objects by path
type Store interface {
	// Open returns a random-access view of the whole object
	Open(ctx context.Context, path string) (Source, error)
	// OpenStream returns a sequential reader
	OpenStream(ctx context.Context, path string) (io.ReadCloser, error)
	// Create returns a sink that publishes path on Commit
	Create(ctx context.Context, path string) (Sink, error)
}

// Location is a parsed path
type Location struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

// IsS3 reports whether the location names an S3 object
func (l Location) IsS3() bool { return l.Scheme == "s3" }

// ParseLocation splits s3://bucket/key paths; anything else is a local path
func ParseLocation(path string) (Location, error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		if path == "" {
			return Location{}, tabulaerrors.New(tabulaerrors.ErrorTypeValidation, "empty path")
		}
		return Location{Scheme: "file", Path: path}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
			"s3 path %q must name a bucket and a key", path)
	}
	return Location{Scheme: "s3", Bucket: bucket, Key: key, Path: path}, nil
}

// Router dispatches local paths to a LocalStore and s3:// paths to an
// S3Store created on first use
type Router struct {
	local  *LocalStore
	cfg    config.StorageConfig
	logger *zap.Logger

	mu sync.Mutex
	s3 Store
}

// NewRouter creates a router over the local file system and S3
func NewRouter(cfg config.StorageConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		local:  NewLocalStore(logger),
		cfg:    cfg,
		logger: logger,
	}
}

// WithS3 sets the store used for s3:// paths
func (r *Router) WithS3(s Store) *Router {
	r.mu.Lock()
	r.s3 = s
	r.mu.Unlock()
	return r
}

func (r *Router) route(ctx context.Context, path string) (Store, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return nil, err
	}
	if !loc.IsS3() {
		return r.local, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 == nil {
		s, err := NewS3Store(ctx, r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.s3 = s
	}
	return r.s3, nil
}

// Open implements Store
func (r *Router) Open(ctx context.Context, path string) (Source, error) {
	s, err := r.route(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, path)
}

// OpenStream implements Store
func (r *Router) OpenStream(ctx context.Context, path string) (io.ReadCloser, error) {
	s, err := r.route(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.OpenStream(ctx, path)
}

// Create implements Store
func (r *Router) Create(ctx context.Context, path string) (Sink, error) {
	s, err := r.route(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, path)
}
