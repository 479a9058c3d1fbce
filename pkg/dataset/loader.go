package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxBytes bounds how much of a payload the loader reads.
const DefaultMaxBytes = 256 << 20

// datasetKey is the singleflight key of the main dataset fetch.
const datasetKey = "\x00dataset"

// Loader fetches the dataset exactly once and serves per-key detail blobs.
// Concurrent callers for the same key share one in-flight fetch. A failed
// dataset fetch is terminal: later Load calls return the same error without
// fetching again.
type Loader struct {
	source   Source
	blobs    Source
	name     string
	maxBytes int64
	logger   *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	done    bool
	dataset *Dataset
	err     error
	cache   map[string][]byte
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithMaxBytes caps the size of fetched payloads.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithBlobSource serves detail blobs from src instead of the dataset's
// own source.
func WithBlobSource(src Source) LoaderOption {
	return func(l *Loader) {
		if src != nil {
			l.blobs = src
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the dataset called name in source.
func NewLoader(source Source, name string, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:   source,
		name:     name,
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
		cache:    make(map[string][]byte),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.blobs == nil {
		l.blobs = source
	}

	return l
}

// Location describes where the dataset is loaded from.
func (l *Loader) Location() string {
	return l.source.URL(l.name)
}

// Load returns the dataset, fetching it on the first call. The fetch is
// detached from ctx: a caller that gives up returns its context error while
// the fetch continues for everyone else, and only a real fetch outcome is
// recorded as final.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	l.mu.Lock()
	if l.done {
		ds, err := l.dataset, l.err
		l.mu.Unlock()

		return ds, err
	}
	l.mu.Unlock()

	ch := l.group.DoChan(datasetKey, func() (any, error) {
		l.mu.Lock()
		if l.done {
			ds, doneErr := l.dataset, l.err
			l.mu.Unlock()

			return ds, doneErr
		}
		l.mu.Unlock()

		ds, fetchErr := l.fetchDataset(context.WithoutCancel(ctx))
		if isContextErr(fetchErr) {
			return nil, fetchErr
		}

		l.mu.Lock()
		l.done = true
		l.dataset, l.err = ds, fetchErr
		l.mu.Unlock()

		return ds, fetchErr
	})

	var res singleflight.Result

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load dataset: %w", ctx.Err())
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	if err != nil {
		return nil, err
	}

	ds, ok := v.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("load dataset: unexpected result %T", v)
	}

	return ds, nil
}

// Loaded reports whether Load has finished, successfully or not.
func (l *Loader) Loaded() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.done, l.err
}

func (l *Loader) fetchDataset(ctx context.Context) (*Dataset, error) {
	rc, err := l.source.Open(ctx, l.name)
	if err != nil {
		l.logger.ErrorContext(ctx, "dataset fetch failed", "location", l.Location(), "error", err)

		return nil, err
	}
	defer rc.Close()

	ds, err := Decode(io.LimitReader(rc, l.maxBytes), FormatFromName(l.name))
	if err != nil {
		l.logger.ErrorContext(ctx, "dataset decode failed", "location", l.Location(), "error", err)

		return nil, fmt.Errorf("load %s: %w", l.Location(), err)
	}

	l.logger.InfoContext(ctx, "dataset loaded",
		"location", l.Location(),
		"commits", len(ds.Commits),
		"tests", len(ds.Tests),
		"results", len(ds.Results))

	return ds, nil
}

// Blob returns the raw bytes of a detail payload. Successful fetches are
// cached; failures are not, so a later request fetches again.
func (l *Loader) Blob(ctx context.Context, name string) ([]byte, error) {
	l.mu.Lock()
	if b, ok := l.cache[name]; ok {
		l.mu.Unlock()

		return b, nil
	}
	l.mu.Unlock()

	v, err, shared := l.group.Do("blob:"+name, func() (any, error) {
		rc, openErr := l.blobs.Open(ctx, name)
		if openErr != nil {
			return nil, openErr
		}
		defer rc.Close()

		b, readErr := io.ReadAll(io.LimitReader(rc, l.maxBytes))
		if readErr != nil {
			return nil, &FetchError{URL: l.blobs.URL(name), Status: "read failed", Err: readErr}
		}

		l.mu.Lock()
		l.cache[name] = b
		l.mu.Unlock()

		return b, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.DebugContext(ctx, "detail blob served", "name", name, "shared", shared)

	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("load %s: unexpected result %T", name, v)
	}

	return b, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
