package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// ObjectAPI is the part of the S3 client used for reads
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Uploader is the part of the transfer manager used for writes
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store reads and writes S3 objects. Every request is bounded by the
// configured timeout and nothing is retried beyond the SDK defaults.
type S3Store struct {
	client   ObjectAPI
	uploader Uploader
	timeout  time.Duration
	logger   *zap.Logger
}

// NewS3Store creates a store from the default AWS credential chain
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.ForcePathStyle
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = manager.DefaultUploadPartSize
		u.Concurrency = manager.DefaultUploadConcurrency
	})
	return NewS3StoreWithClients(client, uploader, cfg.Timeout, logger), nil
}

// NewS3StoreWithClients creates a store over existing clients
func NewS3StoreWithClients(client ObjectAPI, uploader Uploader, timeout time.Duration, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		client:   client,
		uploader: uploader,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "s3_store")),
	}
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// requestError maps an SDK failure, reporting deadlines as timeouts
func requestError(ctx context.Context, err error, message string, loc Location) error {
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr == nil {
			ctxErr = context.DeadlineExceeded
		}
		return tabulaerrors.FromContext(ctxErr, message).
			WithDetail("bucket", loc.Bucket).
			WithDetail("key", loc.Key)
	}
	return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, message).
		WithDetail("bucket", loc.Bucket).
		WithDetail("key", loc.Key)
}

func (s *S3Store) get(ctx context.Context, loc Location) (*s3.GetObjectOutput, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, requestError(ctx, err, "failed to get S3 object", loc)
	}
	return out, nil
}

// Open downloads the whole object into memory
func (s *S3Store) Open(ctx context.Context, path string) (Source, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.get(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, requestError(ctx, err, "failed to download S3 object", loc)
	}
	s.logger.Debug("object downloaded", zap.String("path", path), zap.Int("bytes", len(data)))
	return &memorySource{Reader: bytes.NewReader(data)}, nil
}

// OpenStream returns the object body. The timeout covers the whole read.
func (s *S3Store) OpenStream(ctx context.Context, path string) (io.ReadCloser, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	out, err := s.get(ctx, loc)
	if err != nil {
		cancel()
		return nil, err
	}
	return &streamBody{ReadCloser: out.Body, cancel: cancel}, nil
}

// Create buffers the object in memory and uploads it on Commit
func (s *S3Store) Create(ctx context.Context, path string) (Sink, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "create canceled")
	}
	return &objectSink{store: s, loc: loc}, nil
}

type memorySource struct {
	*bytes.Reader
}

func (m *memorySource) Close() error { return nil }

type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

type objectSink struct {
	store *S3Store
	loc   Location
	buf   bytes.Buffer
	done  bool
}

func (o *objectSink) Write(p []byte) (int, error) {
	if o.done {
		return 0, tabulaerrors.New(tabulaerrors.ErrorTypeInternal, "sink already finished")
	}
	return o.buf.Write(p)
}

func (o *objectSink) Commit(ctx context.Context) error {
	if o.done {
		return tabulaerrors.New(tabulaerrors.ErrorTypeInternal, "sink already finished")
	}
	o.done = true
	ctx, cancel := o.store.withTimeout(ctx)
	defer cancel()

	size := o.buf.Len()
	_, err := o.store.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.loc.Bucket),
		Key:    aws.String(o.loc.Key),
		Body:   bytes.NewReader(o.buf.Bytes()),
	})
	o.buf = bytes.Buffer{}
	if err != nil {
		return requestError(ctx, err, "failed to upload to S3", o.loc)
	}
	o.store.logger.Debug("object uploaded", zap.String("path", o.loc.Path), zap.Int("bytes", size))
	return nil
}

func (o *objectSink) Abort() error {
	o.done = true
	o.buf = bytes.Buffer{}
	return nil
}
