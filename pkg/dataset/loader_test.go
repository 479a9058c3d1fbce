package dataset_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
)

type fakeS3 struct {
	objects map[string][]byte
	calls   atomic.Int32
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls.Add(1)

	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(sampleJSON), 0o600))

	loader := dataset.NewLoader(dataset.FileSource{Dir: dir}, "data.json")

	ds, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Commits, 2)

	done, loadErr := loader.Loaded()
	assert.True(t, done)
	require.NoError(t, loadErr)
}

func TestFileSource_Missing(t *testing.T) {
	t.Parallel()

	_, err := dataset.FileSource{Dir: t.TempDir()}.Open(context.Background(), "nope.json")
	require.ErrorIs(t, err, dataset.ErrNotFound)

	var ferr *dataset.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "not found", ferr.Status)
}

func TestLoader_FailureIsTerminal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	loc, err := dataset.ParseLocation(srv.URL+"/data/full.json", srv.Client(), nil)
	require.NoError(t, err)

	loader := dataset.NewLoader(loc.Source, loc.Name)

	_, err = loader.Load(context.Background())
	require.Error(t, err)

	var ferr *dataset.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, srv.URL+"/data/full.json", ferr.URL)
	assert.Contains(t, ferr.Status, "500")

	_, err = loader.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLoader_CoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = io.WriteString(w, sampleJSON)
	}))
	t.Cleanup(srv.Close)

	loc, err := dataset.ParseLocation(srv.URL+"/full.json", srv.Client(), nil)
	require.NoError(t, err)

	loader := dataset.NewLoader(loc.Source, loc.Name)

	const callers = 8

	var wg sync.WaitGroup

	results := make([]*dataset.Dataset, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = loader.Load(context.Background())
		}()
	}

	// Let every goroutine reach the shared fetch before the server answers.
	for hits.Load() == 0 {
		runtime.Gosched()
	}

	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}

	assert.Equal(t, int32(1), hits.Load())
}

func TestLoader_CancelledCallerDoesNotPoisonLoad(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = io.WriteString(w, sampleJSON)
	}))
	t.Cleanup(srv.Close)

	loc, err := dataset.ParseLocation(srv.URL+"/full.json", srv.Client(), nil)
	require.NoError(t, err)

	loader := dataset.NewLoader(loc.Source, loc.Name)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)

	go func() {
		_, loadErr := loader.Load(ctx)
		firstErr <- loadErr
	}()

	for hits.Load() == 0 {
		runtime.Gosched()
	}

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	done, _ := loader.Loaded()
	assert.False(t, done, "a caller giving up is not a fetch outcome")

	close(release)

	ds, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Commits, 2)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLoader_BlobCached(t *testing.T) {
	t.Parallel()

	client := &fakeS3{objects: map[string][]byte{
		"bench/runs/full.json":   []byte(sampleJSON),
		"bench/runs/detail.json": []byte(`{"x": 1}`),
	}}

	loc, err := dataset.ParseLocation("s3://bench/runs/full.json", nil, func() dataset.S3Client { return client })
	require.NoError(t, err)
	assert.Equal(t, "full.json", loc.Name)

	loader := dataset.NewLoader(loc.Source, loc.Name)

	b, err := loader.Blob(context.Background(), "detail.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": 1}`, string(b))

	_, err = loader.Blob(context.Background(), "detail.json")
	require.NoError(t, err)
	assert.Equal(t, int32(1), client.calls.Load())

	_, err = loader.Blob(context.Background(), "missing.json")
	require.ErrorIs(t, err, dataset.ErrNotFound)
	assert.Equal(t, "s3://bench/runs/full.json", loader.Location())
}

func TestLoader_BlobSource(t *testing.T) {
	t.Parallel()

	dataDir, detailDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "data.json"), []byte(sampleJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(detailDir, "run.json"), []byte(`[1]`), 0o600))

	loader := dataset.NewLoader(dataset.FileSource{Dir: dataDir}, "data.json",
		dataset.WithBlobSource(dataset.FileSource{Dir: detailDir}))

	b, err := loader.Blob(context.Background(), "run.json")
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(b))

	_, err = loader.Blob(context.Background(), "data.json")
	require.ErrorIs(t, err, dataset.ErrNotFound)
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	loc, err := dataset.ParseLocation("/srv/data/full.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "full.json", loc.Name)
	assert.Equal(t, filepath.Join("/srv/data", "x.json"), loc.Source.URL("x.json"))

	_, err = dataset.ParseLocation("s3://bucket-only", nil, func() dataset.S3Client { return &fakeS3{} })
	require.ErrorIs(t, err, dataset.ErrUnsupportedLocation)

	_, err = dataset.ParseLocation("s3://bucket/key.json", nil, nil)
	require.ErrorIs(t, err, dataset.ErrUnsupportedLocation)

	_, err = dataset.ParseLocation("ftp://host/file", nil, nil)
	require.ErrorIs(t, err, dataset.ErrUnsupportedLocation)
}
