package observability

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "trendscope.requests.total"
	metricRequestDuration  = "trendscope.request.duration.seconds"
	metricErrorsTotal      = "trendscope.errors.total"
	metricInflightRequests = "trendscope.inflight.requests"

	metricCondenseRuns     = "trendscope.condense.runs.total"
	metricCondensePointsIn = "trendscope.condense.points.in.total"
	metricCondensePoints   = "trendscope.condense.points.out.total"
	metricCondenseDuration = "trendscope.condense.duration.seconds"

	metricCacheHits   = "trendscope.cache.hits"
	metricCacheMisses = "trendscope.cache.misses"

	attrOp     = "op"
	attrStatus = "status"
	attrCache  = "cache"
	attrCached = "cached"

	// StatusOK and StatusError label RED metrics.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 30s: condensing and serving a series
// is interactive work.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// REDMetrics holds the Rate, Error, Duration instruments.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	reqTotal, err := mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Total number of requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestsTotal, err)
	}

	reqDuration, err := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	errTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightRequests, err)
	}

	return &REDMetrics{
		requestsTotal:    reqTotal,
		requestDuration:  reqDuration,
		errorsTotal:      errTotal,
		inflightRequests: inflight,
	}, nil
}

// RecordRequest records a completed request. Safe on a nil receiver.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight gauge and returns its decrement.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if rm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// CondenseMetrics records condensation runs.
type CondenseMetrics struct {
	runs     metric.Int64Counter
	pointsIn metric.Int64Counter
	points   metric.Int64Counter
	duration metric.Float64Histogram
}

// CondenseRun describes one condensation request.
type CondenseRun struct {
	PointsIn  int
	PointsOut int
	Duration  time.Duration
	Cached    bool
}

// NewCondenseMetrics creates the condensation instruments.
func NewCondenseMetrics(mt metric.Meter) (*CondenseMetrics, error) {
	runs, err := mt.Int64Counter(metricCondenseRuns,
		metric.WithDescription("Condensation requests"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCondenseRuns, err)
	}

	in, err := mt.Int64Counter(metricCondensePointsIn,
		metric.WithDescription("Commits inside condensation windows"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCondensePointsIn, err)
	}

	out, err := mt.Int64Counter(metricCondensePoints,
		metric.WithDescription("Points emitted by condensation"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCondensePoints, err)
	}

	dur, err := mt.Float64Histogram(metricCondenseDuration,
		metric.WithDescription("Condensation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCondenseDuration, err)
	}

	return &CondenseMetrics{runs: runs, pointsIn: in, points: out, duration: dur}, nil
}

// RecordRun records one run. Safe on a nil receiver.
func (cm *CondenseMetrics) RecordRun(ctx context.Context, run CondenseRun) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool(attrCached, run.Cached))

	cm.runs.Add(ctx, 1, attrs)
	cm.pointsIn.Add(ctx, int64(run.PointsIn), attrs)
	cm.points.Add(ctx, int64(run.PointsOut), attrs)
	cm.duration.Record(ctx, run.Duration.Seconds(), attrs)
}

// CacheStatsProvider exposes cache hit/miss counters.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// RegisterCacheMetrics registers observable gauges reporting each named
// cache's counters. Nil providers are skipped.
func RegisterCacheMetrics(mt metric.Meter, caches map[string]CacheStatsProvider) error {
	names := slices.Sorted(maps.Keys(caches))
	names = slices.DeleteFunc(names, func(n string) bool { return caches[n] == nil })

	if len(names) == 0 {
		return nil
	}

	observe := func(read func(CacheStatsProvider) int64) metric.Int64Callback {
		return func(_ context.Context, o metric.Int64Observer) error {
			for _, n := range names {
				o.Observe(read(caches[n]), metric.WithAttributes(attribute.String(attrCache, n)))
			}

			return nil
		}
	}

	_, err := mt.Int64ObservableGauge(metricCacheHits,
		metric.WithDescription("Cache hit count"),
		metric.WithUnit("{hit}"),
		metric.WithInt64Callback(observe(CacheStatsProvider.CacheHits)),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	_, err = mt.Int64ObservableGauge(metricCacheMisses,
		metric.WithDescription("Cache miss count"),
		metric.WithUnit("{miss}"),
		metric.WithInt64Callback(observe(CacheStatsProvider.CacheMisses)),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	return nil
}
