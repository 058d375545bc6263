package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("s3://bucket/dir/data.tblc")
	require.NoError(t, err)
	assert.True(t, loc.IsS3())
	assert.Equal(t, "bucket", loc.Bucket)
	assert.Equal(t, "dir/data.tblc", loc.Key)

	loc, err = ParseLocation("./data.csv")
	require.NoError(t, err)
	assert.False(t, loc.IsS3())
	assert.Equal(t, "./data.csv", loc.Path)

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/"} {
		_, err := ParseLocation(bad)
		assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation), bad)
	}
}

func TestLocalCommit(t *testing.T) {
	ctx := testutil.TestContext(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "data.tblc")
	store := NewLocalStore(testutil.TestLogger(t))

	sink, err := store.Create(ctx, path)
	require.NoError(t, err)
	defer sink.Abort()

	_, err = sink.Write([]byte("payload"))
	require.NoError(t, err)
	assert.NoFileExists(t, path, "invisible before commit")

	require.NoError(t, sink.Commit(ctx))
	assert.Equal(t, []string{"data.tblc"}, testutil.ListDir(t, filepath.Dir(path)))
	assert.NoError(t, sink.Abort(), "abort after commit is a no-op")
	assert.FileExists(t, path)

	src, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, int64(7), src.Size())
	buf := make([]byte, 4)
	_, err = src.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "load", string(buf))

	stream, err := store.OpenStream(ctx, path)
	require.NoError(t, err)
	all, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, "payload", string(all))
}

func TestLocalAbortLeavesNoFile(t *testing.T) {
	ctx := testutil.TestContext(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.tblc")
	store := NewLocalStore(nil)

	sink, err := store.Create(ctx, path)
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort())
	assert.Empty(t, testutil.ListDir(t, dir))

	canceled, cancel := context.WithCancel(ctx)
	sink, err = store.Create(ctx, path)
	require.NoError(t, err)
	cancel()
	err = sink.Commit(canceled)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeCanceled))
	require.NoError(t, sink.Abort())
	assert.Empty(t, testutil.ListDir(t, dir))
}

func TestLocalCommitReplacesExisting(t *testing.T) {
	ctx := testutil.TestContext(t)
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "data.tblc", []byte("old"))

	sink, err := NewLocalStore(nil).Create(ctx, path)
	require.NoError(t, err)
	_, err = sink.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, sink.Commit(ctx))

	stream, err := NewLocalStore(nil).OpenStream(ctx, path)
	require.NoError(t, err)
	defer stream.Close()
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestLocalOpenMissing(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := NewLocalStore(nil)
	_, err := store.Open(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeIO))
	_, err = store.OpenStream(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeIO))
}

type fakeObjects struct {
	objects map[string][]byte
	block   bool
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeUploader struct {
	objects *fakeObjects
	fail    error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &manager.UploadOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := testutil.TestContext(t)
	objects := &fakeObjects{objects: map[string][]byte{}}
	store := NewS3StoreWithClients(objects, &fakeUploader{objects: objects}, time.Minute, testutil.TestLogger(t))
	router := NewRouter(config.StorageConfig{}, nil).WithS3(store)

	sink, err := router.Create(ctx, "s3://bucket/out.tblc")
	require.NoError(t, err)
	_, err = sink.Write([]byte("columns"))
	require.NoError(t, err)
	assert.Empty(t, objects.objects, "nothing uploaded before commit")
	require.NoError(t, sink.Commit(ctx))
	assert.Equal(t, []byte("columns"), objects.objects["bucket/out.tblc"])

	src, err := router.Open(ctx, "s3://bucket/out.tblc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.Size())
	require.NoError(t, src.Close())

	stream, err := router.OpenStream(ctx, "s3://bucket/out.tblc")
	require.NoError(t, err)
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, "columns", string(got))

	_, err = router.Open(ctx, "s3://bucket/missing")
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeIO))
}

func TestS3AbortUploadsNothing(t *testing.T) {
	ctx := testutil.TestContext(t)
	objects := &fakeObjects{objects: map[string][]byte{}}
	store := NewS3StoreWithClients(objects, &fakeUploader{objects: objects}, 0, nil)

	sink, err := store.Create(ctx, "s3://bucket/out.tblc")
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort())
	assert.Empty(t, objects.objects)

	failing := NewS3StoreWithClients(objects, &fakeUploader{objects: objects, fail: errors.New("denied")}, 0, nil)
	sink, err = failing.Create(ctx, "s3://bucket/out.tblc")
	require.NoError(t, err)
	err = sink.Commit(ctx)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeIO))
}

func TestS3Timeout(t *testing.T) {
	objects := &fakeObjects{block: true}
	store := NewS3StoreWithClients(objects, nil, 20*time.Millisecond, nil)

	_, err := store.Open(testutil.TestContext(t), "s3://bucket/slow")
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeTimeout), err.Error())
	assert.True(t, tabulaerrors.IsRetryable(err))

	_, err = store.OpenStream(testutil.TestContext(t), "s3://bucket/slow")
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeTimeout))
}

func TestRouterLocal(t *testing.T) {
	ctx := testutil.TestContext(t)
	path := testutil.WriteFile(t, t.TempDir(), "in.csv", []byte("a\n1\n"))

	router := NewRouter(config.StorageConfig{}, testutil.TestLogger(t))
	src, err := router.Open(ctx, path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, int64(4), src.Size())

	_, err = router.Open(ctx, "")
	assert.Error(t, err)
}
