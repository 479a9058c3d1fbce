// Package server serves the dashboard page and its JSON API: metric
// listings, cached condensed series, tick plans, tooltips, interactive
// sessions and detail blob passthrough.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/trendscope/pkg/chart"
	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
	"github.com/Sumatoshi-tech/trendscope/pkg/seriescache"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

// Defaults.
const (
	DefaultTitle       = "trendscope"
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1024

	defaultShutdownTimeout = 10 * time.Second
	tracerName             = "trendscope/server"
	seriesCacheName        = "series"
)

// Default plot area used until a client reports its own.
var defaultArea = plot.Area{Left: 80, Width: 1000}

// Config tunes the server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SessionTTL  time.Duration
	MaxSessions int

	Title string
	Theme chart.Theme

	Plot     plot.Config
	Links    tooltip.TemplateLinks
	Compress bool
}

// Deps are the server's collaborators. Only Loader is required.
type Deps struct {
	Loader *dataset.Loader
	// Store backs the series cache; nil uses an in-process Memory store.
	Store seriescache.Store
	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer
	// Meter registers RED, condensation and cache metrics when set.
	Meter metric.Meter
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg     Config
	loader  *dataset.Loader
	store   seriescache.Store
	tracer  trace.Tracer
	red     *observability.REDMetrics
	cmet    *observability.CondenseMetrics
	metrics http.Handler
	logger  *slog.Logger

	sessions *sessionStore
	handler  http.Handler

	mu  sync.Mutex
	app *app
}

// app is the state derived from the loaded dataset.
type app struct {
	dataset   *dataset.Dataset
	index     *timeline.Index
	condenser *condense.Condenser
	series    *seriescache.Cached
	presenter *tooltip.Presenter
}

// New creates a server. The dataset is loaded on first use.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Loader == nil {
		return nil, errors.New("server: nil dataset loader")
	}

	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		cfg:      cfg,
		loader:   deps.Loader,
		store:    deps.Store,
		tracer:   deps.Tracer,
		metrics:  deps.MetricsHandler,
		logger:   deps.Logger,
		sessions: newSessionStore(cfg.SessionTTL, cfg.MaxSessions),
	}

	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.store == nil {
		s.store = seriescache.NewMemory(seriescache.DefaultMemorySize)
	}

	if deps.Meter != nil {
		err := s.registerMetrics(deps.Meter)
		if err != nil {
			return nil, err
		}
	}

	s.handler = observability.HTTPMiddleware(s.tracer, s.red, s.routes())

	return s, nil
}

func (s *Server) registerMetrics(mt metric.Meter) error {
	red, err := observability.NewREDMetrics(mt)
	if err != nil {
		return fmt.Errorf("register RED metrics: %w", err)
	}

	cmet, err := observability.NewCondenseMetrics(mt)
	if err != nil {
		return fmt.Errorf("register condense metrics: %w", err)
	}

	err = observability.RegisterCacheMetrics(mt, map[string]observability.CacheStatsProvider{seriesCacheName: s})
	if err != nil {
		return fmt.Errorf("register cache metrics: %w", err)
	}

	s.red, s.cmet = red, cmet

	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(observability.ReadyCheck{
		Name: "dataset",
		Check: func(ctx context.Context) error {
			_, err := s.load(ctx)

			return err
		},
	}))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/ticks", s.handleTicks)
	mux.HandleFunc("GET /api/tooltip", s.handleTooltip)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /data/{name}", s.handleData)

	return mux
}

// Handler is the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.InfoContext(ctx, "dashboard server starting", "addr", "http://"+listener.Addr().String())

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	go s.warm(ctx)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	s.logger.InfoContext(ctx, "dashboard server stopped")

	return nil
}

// Close releases the series cache store.
func (s *Server) Close() error {
	err := s.store.Close()
	if err != nil {
		return fmt.Errorf("close series cache: %w", err)
	}

	return nil
}

// CacheHits reports series cache hits.
func (s *Server) CacheHits() int64 {
	if a := s.loaded(); a != nil {
		return a.series.CacheHits()
	}

	return 0
}

// CacheMisses reports series cache misses.
func (s *Server) CacheMisses() int64 {
	if a := s.loaded(); a != nil {
		return a.series.CacheMisses()
	}

	return 0
}

func (s *Server) loaded() *app {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.app
}

// warm fetches the dataset at startup so the first request does not own the
// fetch.
func (s *Server) warm(ctx context.Context) {
	_, err := s.load(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "dataset load failed", "location", s.loader.Location(), "error", err)
	}
}

// load returns the dataset state, loading it on first use. The loader makes
// a failure terminal, so every later call reports the same error.
func (s *Server) load(ctx context.Context) (*app, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.app != nil {
		return s.app, nil
	}

	ds, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := timeline.FromDataset(ds)
	if err != nil {
		s.logger.ErrorContext(ctx, "dataset unusable", "location", s.loader.Location(), "error", err)

		return nil, fmt.Errorf("index %s: %w", s.loader.Location(), err)
	}

	condenser, err := condense.NewCondenser(idx, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create condenser: %w", err)
	}

	presenter, err := tooltip.NewPresenter(idx, s.cfg.Links)
	if err != nil {
		return nil, fmt.Errorf("create presenter: %w", err)
	}

	if n := idx.Dropped(); n > 0 {
		s.logger.WarnContext(ctx, "results for unknown commits or tests dropped", "count", n)
	}

	fingerprint, err := ds.Fingerprint()
	if err != nil {
		return nil, err
	}

	s.app = &app{
		dataset:   ds,
		index:     idx,
		condenser: condenser,
		presenter: presenter,
		series: seriescache.New(condenser, s.store,
			seriescache.WithCompression(s.cfg.Compress),
			seriescache.WithNamespace(fingerprint),
			seriescache.WithLogger(s.logger)),
	}

	return s.app, nil
}

// newView builds a headless controller for one client.
func (s *Server) newView(a *app, cfg plot.Config, fragment string, area plot.Area) (*view, error) {
	if area.Width <= 0 {
		area = defaultArea
	}

	v := &view{
		recorder: plot.NewRecorder(area),
		fragment: viewstate.NewMemoryFragment(fragment),
		queue:    &plot.TickQueue{},
	}

	ctrl, err := plot.NewController(cfg, plot.Deps{
		Index:     a.index,
		Condenser: a.condenser,
		Presenter: a.presenter,
		Chart:     v.recorder,
		Overlay:   v.recorder,
		Scheduler: v.queue,
		Fragment:  v.fragment,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	v.ctrl = ctrl

	// A fragment naming unknown metrics is reported through the alerts and
	// the default view is shown instead.
	err = ctrl.Start()
	if err != nil && !errors.Is(err, plot.ErrUnknownMetric) {
		return nil, fmt.Errorf("start controller: %w", err)
	}

	if err != nil && v.recorder.Snapshot().Frame == nil {
		err = ctrl.UpdateData()
		if err != nil {
			return nil, fmt.Errorf("render default view: %w", err)
		}
	}

	return v, nil
}
