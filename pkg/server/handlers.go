package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/trendscope/pkg/axis"
	"github.com/Sumatoshi-tech/trendscope/pkg/chart"
	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// Request errors.
var (
	ErrBadParam      = errors.New("invalid query parameter")
	ErrMissingParam  = errors.New("missing query parameter")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrBadBlobName   = errors.New("invalid blob name")
	ErrPageFailed    = errors.New("dashboard page failed")
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Metrics []timeline.Metric      `json:"metrics"`
	Tree    []*timeline.MetricNode `json:"tree"`
	Default string                 `json:"default"`
	Range   timeline.Range         `json:"range"`
	Stats   dataset.Stats          `json:"stats"`
}

// SeriesResponse is the body of GET /api/series.
type SeriesResponse struct {
	Series []condense.Series `json:"series"`
	Range  timeline.Range    `json:"range"`
	Cached bool              `json:"cached"`
}

// TicksResponse is the body of GET /api/ticks.
type TicksResponse struct {
	Time  []axis.Tick `json:"time"`
	Value []axis.Tick `json:"value,omitempty"`
}

// TooltipResponse is the body of GET /api/tooltip.
type TooltipResponse struct {
	View *tooltip.View `json:"view"`
	HTML string        `json:"html"`
}

// FrameResponse is the body of the session endpoints.
type FrameResponse struct {
	Session     string        `json:"session"`
	Fragment    string        `json:"fragment"`
	Snapshot    plot.Snapshot `json:"snapshot"`
	TooltipHTML string        `json:"tooltip_html,omitempty"`
	Alerts      []string      `json:"alerts,omitempty"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Fragment string  `json:"fragment"`
	Left     float64 `json:"left"`
	Width    float64 `json:"width"`
}

// EventsRequest is the body of POST /api/sessions/{id}/events.
type EventsRequest struct {
	Events []Event `json:"events"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handlePage(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	theme := s.cfg.Theme
	if t := hr.URL.Query().Get("theme"); t != "" {
		theme = chart.ParseTheme(t)
	}

	page, status := s.buildPage(ctx, PageOptions{Theme: theme, Interactive: true})

	var buf bytes.Buffer

	err := page.Render(&buf)
	if err != nil {
		s.logger.ErrorContext(ctx, "render dashboard page", "error", err)
		http.Error(rw, "render page", http.StatusInternalServerError)

		return
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}

// PageOptions selects what a rendered page shows.
type PageOptions struct {
	Theme chart.Theme
	// Fragment is the initial view-state; empty shows the default view.
	Fragment string
	// Interactive embeds the session client.
	Interactive bool
}

// RenderPage writes the dashboard page to w. A dataset that cannot be
// loaded is rendered as the page's error box and also returned.
func (s *Server) RenderPage(ctx context.Context, w io.Writer, opts PageOptions) error {
	page, status := s.buildPage(ctx, opts)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	if status != http.StatusOK && page.Error != nil {
		return fmt.Errorf("%w: %s", ErrPageFailed, page.Error.Message)
	}

	return nil
}

func (s *Server) buildPage(ctx context.Context, opts PageOptions) (*chart.Page, int) {
	page := &chart.Page{Title: s.cfg.Title, Theme: opts.Theme, Interactive: opts.Interactive}

	a, err := s.load(ctx)
	if err != nil {
		page.Error = s.pageError(err)

		return page, http.StatusBadGateway
	}

	v, err := s.newView(a, s.cfg.Plot, opts.Fragment, defaultArea)
	if err != nil {
		page.Error = &chart.PageError{Message: err.Error()}

		return page, http.StatusInternalServerError
	}

	state := v.ctrl.State()

	page.Frame = v.recorder.Snapshot().Frame
	page.Metric = state.Metric
	page.Pinned = state.Pinned
	page.Fragment = v.fragment.Get()
	page.MetricTree = timeline.MetricTree(a.index.Metrics())
	page.Footer = chart.NewFooter(a.index.Stats(), len(a.dataset.Tests))

	return page, http.StatusOK
}

func (s *Server) pageError(err error) *chart.PageError {
	pe := &chart.PageError{Message: err.Error(), URL: s.loader.Location()}

	var fe *dataset.FetchError
	if errors.As(err, &fe) {
		pe.URL = fe.URL
		pe.Message = fe.Status
	}

	return pe
}

func (s *Server) handleMetrics(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	a, err := s.load(ctx)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadGateway, err)

		return
	}

	def := s.cfg.Plot.DefaultMetric
	if _, ok := a.index.Metric(def); !ok {
		def = a.index.DefaultMetric()
	}

	s.writeJSON(ctx, rw, http.StatusOK, MetricsResponse{
		Metrics: a.index.Metrics(),
		Tree:    timeline.MetricTree(a.index.Metrics()),
		Default: def,
		Range:   a.index.DataRange(),
		Stats:   a.index.Stats(),
	})
}

func (s *Server) handleSeries(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	a, err := s.load(ctx)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadGateway, err)

		return
	}

	q := hr.URL.Query()

	ids := splitList(q.Get("metrics"))
	if len(ids) == 0 {
		ids = []string{a.index.DefaultMetric()}
	}

	for _, id := range ids {
		if _, ok := a.index.Metric(id); !ok {
			s.writeError(ctx, rw, http.StatusNotFound, fmt.Errorf("%w: %q", ErrUnknownMetric, id))

			return
		}
	}

	r, opts, err := s.seriesParams(q, a.index.DataRange())
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadRequest, err)

		return
	}

	start := time.Now()

	series, hit, err := a.series.Condense(ctx, ids, r, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, condense.ErrInvalidRange) {
			status = http.StatusBadRequest
		}

		s.writeError(ctx, rw, status, err)

		return
	}

	s.cmet.RecordRun(ctx, condenseRun(series, hit, time.Since(start)))

	s.writeJSON(ctx, rw, http.StatusOK, SeriesResponse{Series: series, Range: r, Cached: hit})
}

func (s *Server) seriesParams(q url.Values, full timeline.Range) (timeline.Range, condense.Options, error) {
	get := q.Get
	r := full

	var err error

	r.Start, err = floatParam("start", get("start"), full.Start)
	if err != nil {
		return r, condense.Options{}, err
	}

	r.Stop, err = floatParam("stop", get("stop"), full.Stop)
	if err != nil {
		return r, condense.Options{}, err
	}

	opts := condense.Options{MaxPoints: s.cfg.Plot.MaxPoints, EvenSpacing: s.cfg.Plot.EvenSpacing}

	if raw := get("maxpoints"); raw != "" {
		opts.MaxPoints, err = strconv.Atoi(raw)
		if err != nil || opts.MaxPoints < 0 {
			return r, opts, fmt.Errorf("%w: maxpoints=%q", ErrBadParam, raw)
		}
	}

	if _, ok := q["nocondense"]; ok {
		opts.MaxPoints = 0
	}

	if raw := get("evenspacing"); raw != "" {
		opts.EvenSpacing, err = strconv.ParseBool(raw)
		if err != nil {
			return r, opts, fmt.Errorf("%w: evenspacing=%q", ErrBadParam, raw)
		}
	} else if _, ok := q["evenspacing"]; ok {
		opts.EvenSpacing = true
	}

	return r, opts, nil
}

// sessionConfig applies the maxpoints, nocondense, evenspacing, zoomwidth
// and tooltipoffset query options to the configured controller defaults.
func (s *Server) sessionConfig(q url.Values) (plot.Config, error) {
	cfg := s.cfg.Plot

	_, opts, err := s.seriesParams(q, timeline.Range{})
	if err != nil {
		return cfg, err
	}

	cfg.MaxPoints, cfg.EvenSpacing = opts.MaxPoints, opts.EvenSpacing

	cfg.HighlightWidth, err = floatParam("zoomwidth", q.Get("zoomwidth"), cfg.HighlightWidth)
	if err != nil {
		return cfg, err
	}

	if cfg.HighlightWidth <= 0 {
		return cfg, fmt.Errorf("%w: zoomwidth must be positive", ErrBadParam)
	}

	cfg.TooltipOffset, err = floatParam("tooltipoffset", q.Get("tooltipoffset"), cfg.TooltipOffset)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

func condenseRun(series []condense.Series, hit bool, d time.Duration) observability.CondenseRun {
	run := observability.CondenseRun{Duration: d, Cached: hit}

	for _, s := range series {
		run.PointsIn += s.Window.Len()
		run.PointsOut += len(s.Points)
	}

	return run
}

func (s *Server) handleTicks(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()
	q := hr.URL.Query()

	if q.Get("start") == "" || q.Get("stop") == "" {
		s.writeError(ctx, rw, http.StatusBadRequest, fmt.Errorf("%w: start and stop", ErrMissingParam))

		return
	}

	resp, err := planTicks(q)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadRequest, err)

		return
	}

	s.writeJSON(ctx, rw, http.StatusOK, resp)
}

func planTicks(q url.Values) (TicksResponse, error) {
	lo, err := floatParam("start", q.Get("start"), 0)
	if err != nil {
		return TicksResponse{}, err
	}

	hi, err := floatParam("stop", q.Get("stop"), 0)
	if err != nil {
		return TicksResponse{}, err
	}

	resp := TicksResponse{Time: axis.PlanTime(lo, hi)}

	resp.Value, err = valueTicks(q.Get("min"), q.Get("max"), units.Parse(q.Get("unit")))
	if err != nil {
		return TicksResponse{}, err
	}

	return resp, nil
}

func valueTicks(minRaw, maxRaw string, unit units.Unit) ([]axis.Tick, error) {
	if maxRaw == "" {
		return nil, nil
	}

	lo, err := floatParam("min", minRaw, 0)
	if err != nil {
		return nil, err
	}

	hi, err := floatParam("max", maxRaw, 0)
	if err != nil {
		return nil, err
	}

	return axis.PlanValue(lo, hi, unit), nil
}

func (s *Server) handleTooltip(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	a, err := s.load(ctx)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadGateway, err)

		return
	}

	q := hr.URL.Query()

	metricID, rev := q.Get("metric"), q.Get("rev")
	if metricID == "" || rev == "" {
		s.writeError(ctx, rw, http.StatusBadRequest, fmt.Errorf("%w: metric and rev", ErrMissingParam))

		return
	}

	v, err := a.presenter.PresentCommit(metricID, rev)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tooltip.ErrUnknownMetric) || errors.Is(err, tooltip.ErrUnknownCommit) ||
			errors.Is(err, tooltip.ErrNullPoint) {
			status = http.StatusNotFound
		}

		s.writeError(ctx, rw, status, err)

		return
	}

	var buf bytes.Buffer

	err = tooltip.RenderHTML(&buf, v)
	if err != nil {
		s.writeError(ctx, rw, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(ctx, rw, http.StatusOK, TooltipResponse{View: v, HTML: buf.String()})
}

func (s *Server) handleCreateSession(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	a, err := s.load(ctx)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadGateway, err)

		return
	}

	cfg, err := s.sessionConfig(hr.URL.Query())
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadRequest, err)

		return
	}

	var req CreateSessionRequest

	err = decodeBody(hr, &req)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadRequest, err)

		return
	}

	v, err := s.newView(a, cfg, strings.TrimPrefix(req.Fragment, "#"), plot.Area{Left: req.Left, Width: req.Width})
	if err != nil {
		s.writeError(ctx, rw, http.StatusInternalServerError, err)

		return
	}

	sess := s.sessions.add(v)
	ctx = observability.WithSession(ctx, sess.id)

	s.logger.DebugContext(ctx, "session created", "fragment", req.Fragment, "sessions", s.sessions.len())

	s.writeFrame(ctx, rw, http.StatusCreated, sess.id, v)
}

func (s *Server) handleEvents(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	sess, err := s.sessions.get(hr.PathValue("id"))
	if err != nil {
		s.writeError(ctx, rw, http.StatusNotFound, err)

		return
	}

	ctx = observability.WithSession(ctx, sess.id)

	var req EventsRequest

	err = decodeBody(hr, &req)
	if err != nil {
		s.writeError(ctx, rw, http.StatusBadRequest, err)

		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	v := sess.view

	for i, ev := range req.Events {
		err = v.apply(ev)
		if err != nil {
			v.queue.Flush()
			s.logger.WarnContext(ctx, "session event rejected", "index", i, "type", ev.Type, "error", err)

			status := http.StatusBadRequest
			if !errors.Is(err, ErrUnknownEvent) && !errors.Is(err, ErrInvalidEvent) &&
				!errors.Is(err, tooltip.ErrPointIndex) && !errors.Is(err, tooltip.ErrNullPoint) {
				status = http.StatusInternalServerError
			}

			s.writeError(ctx, rw, status, fmt.Errorf("event %d: %w", i, err))

			return
		}
	}

	v.queue.Flush()

	s.writeFrame(ctx, rw, http.StatusOK, sess.id, v)
}

func (s *Server) handleDeleteSession(rw http.ResponseWriter, hr *http.Request) {
	if !s.sessions.remove(hr.PathValue("id")) {
		s.writeError(hr.Context(), rw, http.StatusNotFound, fmt.Errorf("%w: %s", ErrSessionUnknown, hr.PathValue("id")))

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleData(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()
	name := hr.PathValue("name")

	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		s.writeError(ctx, rw, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrBadBlobName, name))

		return
	}

	blob, err := s.loader.Blob(ctx, name)
	if err != nil {
		var fe *dataset.FetchError

		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, dataset.ErrNotFound):
			status = http.StatusNotFound
		case errors.As(err, &fe):
			status = http.StatusBadGateway
		}

		s.writeError(ctx, rw, status, err)

		return
	}

	contentType := "application/octet-stream"
	if path.Ext(name) == ".json" {
		contentType = "application/json"
	}

	rw.Header().Set("Content-Type", contentType)
	_, _ = rw.Write(blob)
}

func (s *Server) writeFrame(ctx context.Context, rw http.ResponseWriter, status int, id string, v *view) {
	alerts := v.recorder.TakeAlerts()
	snap := v.recorder.Snapshot()

	resp := FrameResponse{Session: id, Fragment: v.fragment.Get(), Snapshot: snap, Alerts: alerts}

	if snap.Tooltip != nil && snap.Tooltip.View != nil {
		var buf bytes.Buffer

		err := tooltip.RenderHTML(&buf, snap.Tooltip.View)
		if err != nil {
			s.writeError(ctx, rw, http.StatusInternalServerError, err)

			return
		}

		resp.TooltipHTML = buf.String()
	}

	s.writeJSON(ctx, rw, status, resp)
}

// writeJSON encodes value as the response body.
func (s *Server) writeJSON(ctx context.Context, rw http.ResponseWriter, status int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	err := json.NewEncoder(rw).Encode(value)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(ctx context.Context, rw http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	s.writeJSON(ctx, rw, status, errorBody{Error: err.Error()})
}

func decodeBody(hr *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, hr.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}

	return nil
}

func floatParam(name, raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadParam, name, raw)
	}

	return v, nil
}

func splitList(raw string) []string {
	var out []string

	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
