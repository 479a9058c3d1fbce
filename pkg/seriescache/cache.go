// Package seriescache caches condensed series keyed by metric set, range and
// condensing options. Payloads live in a Store: an in-process LRU (Memory) or
// a shared Redis instance (Redis).
package seriescache

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

// Store holds encoded payloads.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Close() error
}

// Discard is a Store that keeps nothing, so every lookup condenses.
type Discard struct{}

// Get always misses.
func (Discard) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set drops data.
func (Discard) Set(context.Context, string, []byte) error { return nil }

// Close is a no-op.
func (Discard) Close() error { return nil }

// Key is the canonical cache key of one condensation request. Metric order is
// significant: it decides the order of the returned series. Ids are query
// escaped so separators inside an id cannot collide with the list syntax.
func Key(ids []string, r timeline.Range, opts condense.Options) string {
	var b strings.Builder

	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(url.QueryEscape(id))
	}

	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Start, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Stop, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(opts.MaxPoints))

	if opts.EvenSpacing {
		b.WriteString("|even")
	}

	return b.String()
}

// Cached fronts a Condenser with a Store. Store failures are logged and fall
// through to condensing; concurrent misses for one key condense once.
type Cached struct {
	condenser *condense.Condenser
	store     Store
	compress  bool
	namespace string
	logger    *slog.Logger
	group     singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cached.
type Option func(*Cached)

// WithCompression LZ4-compresses stored payloads.
func WithCompression(on bool) Option {
	return func(c *Cached) { c.compress = on }
}

// WithNamespace prefixes every key, typically with a dataset fingerprint, so
// a shared store never serves series condensed from other data.
func WithNamespace(ns string) Option {
	return func(c *Cached) { c.namespace = ns }
}

// WithLogger sets the logger for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cached) { c.logger = l }
}

// New creates a Cached condenser. A nil store caches in memory.
func New(condenser *condense.Condenser, store Store, opts ...Option) *Cached {
	if store == nil {
		store = NewMemory(0)
	}

	c := &Cached{condenser: condenser, store: store, logger: slog.Default()}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Condenser returns the wrapped condenser.
func (c *Cached) Condenser() *condense.Condenser {
	return c.condenser
}

// Condense returns the condensed series for ids over r, from the store when
// possible. hit reports whether the result was served from the store.
func (c *Cached) Condense(ctx context.Context, ids []string, r timeline.Range, opts condense.Options) (series []condense.Series, hit bool, err error) {
	key := Key(ids, r, opts)
	if c.namespace != "" {
		key = c.namespace + ":" + key
	}

	series, ok := c.lookup(ctx, key)
	if ok {
		c.hits.Add(1)

		return series, true, nil
	}

	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		out, cerr := c.condenser.CondenseWith(ids, r, opts)
		if cerr != nil {
			return nil, cerr
		}

		c.save(ctx, key, out)

		return out, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.([]condense.Series), false, nil
}

// CacheHits is the number of requests served from the store.
func (c *Cached) CacheHits() int64 { return c.hits.Load() }

// CacheMisses is the number of requests that had to condense.
func (c *Cached) CacheMisses() int64 { return c.misses.Load() }

// Close closes the store.
func (c *Cached) Close() error {
	return c.store.Close()
}

func (c *Cached) lookup(ctx context.Context, key string) ([]condense.Series, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("series cache read failed", "key", key, "error", err)

		return nil, false
	}

	if !ok {
		return nil, false
	}

	series, err := Decode(data)
	if err != nil {
		c.logger.Warn("series cache entry dropped", "key", key, "error", err)

		return nil, false
	}

	return series, true
}

func (c *Cached) save(ctx context.Context, key string, series []condense.Series) {
	data, err := Encode(series, c.compress)
	if err == nil {
		err = c.store.Set(ctx, key, data)
	}

	if err != nil {
		c.logger.Warn("series cache write failed", "key", key, "error", err)
	}
}
