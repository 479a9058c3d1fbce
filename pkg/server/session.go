package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

// Event errors.
var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrSessionUnknown = errors.New("unknown session")
)

// Event types accepted by the events endpoint.
const (
	EventHover    = "hover"
	EventClick    = "click"
	EventMouseOut = "mouseout"
	EventZoom     = "zoom"
	EventSelect   = "select"
	EventPin      = "pin"
	EventUnpin    = "unpin"
	EventFragment = "fragment"
	EventDismiss  = "dismiss"
	EventResize   = "resize"
)

// Event is one pointer or control event from a client.
type Event struct {
	Type string `json:"type"`
	// Item is the point under the pointer; nil over empty plot space.
	Item *plot.Item    `json:"item,omitempty"`
	Pos  plot.Position `json:"pos"`
	// Metric is the target of select, pin and unpin.
	Metric string `json:"metric,omitempty"`
	// Start and Stop bound a zoom; omitting both zooms out.
	Start *float64 `json:"start,omitempty"`
	Stop  *float64 `json:"stop,omitempty"`
	// Fragment is the new view-state for fragment events, without "#".
	Fragment *string   `json:"fragment,omitempty"`
	Area     plot.Area `json:"area"`
}

// view is one headless controller with its recorder and fragment.
type view struct {
	ctrl     *plot.Controller
	recorder *plot.Recorder
	fragment *viewstate.MemoryFragment
	queue    *plot.TickQueue
}

// apply runs one event. Unknown metrics are reported through the alerts
// and do not fail the event.
func (v *view) apply(ev Event) error {
	var err error

	switch ev.Type {
	case EventHover:
		v.ctrl.OnHover(ev.Item, ev.Pos)
	case EventClick:
		err = v.ctrl.OnClick(ev.Item)
	case EventMouseOut:
		v.ctrl.OnMouseOut()
	case EventDismiss:
		v.ctrl.DismissTooltip()
	case EventZoom:
		err = v.zoom(ev)
	case EventSelect:
		err = v.ctrl.SelectMetric(ev.Metric)
	case EventPin:
		err = v.ctrl.Pin(ev.Metric)
	case EventUnpin:
		err = v.ctrl.Unpin(ev.Metric)
	case EventFragment:
		if ev.Fragment == nil {
			return fmt.Errorf("%w: fragment event without fragment", ErrInvalidEvent)
		}

		v.fragment.Set(*ev.Fragment)
	case EventResize:
		if ev.Area.Width <= 0 {
			return fmt.Errorf("%w: non-positive width %g", ErrInvalidEvent, ev.Area.Width)
		}

		v.recorder.Resize(ev.Area)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	if errors.Is(err, plot.ErrUnknownMetric) {
		return nil
	}

	return err
}

func (v *view) zoom(ev Event) error {
	switch {
	case ev.Start == nil && ev.Stop == nil:
		return v.ctrl.SetZoomRange(nil)
	case ev.Start == nil || ev.Stop == nil:
		return fmt.Errorf("%w: zoom needs both start and stop", ErrInvalidEvent)
	default:
		return v.ctrl.SetZoomRange(&timeline.Range{Start: *ev.Start, Stop: *ev.Stop})
	}
}

// session is a view owned by one client. Events are serialized by mu.
type session struct {
	id string

	mu       sync.Mutex
	view     *view
	lastUsed time.Time
}

// sessionStore holds live sessions. Expired sessions are dropped lazily;
// at capacity the least recently used session is evicted.
type sessionStore struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu   sync.Mutex
	byID map[string]*session
}

func newSessionStore(ttl time.Duration, maxSessions int) *sessionStore {
	return &sessionStore{
		ttl:  ttl,
		max:  maxSessions,
		now:  time.Now,
		byID: make(map[string]*session),
	}
}

func (st *sessionStore) add(v *view) *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	st.expire(now)

	for len(st.byID) >= st.max {
		st.evictOldest()
	}

	s := &session{id: uuid.NewString(), view: v, lastUsed: now}
	st.byID[s.id] = s

	return s
}

func (st *sessionStore) get(id string) (*session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()

	s, ok := st.byID[id]
	if !ok || now.Sub(s.lastUsed) > st.ttl {
		delete(st.byID, id)

		return nil, fmt.Errorf("%w: %s", ErrSessionUnknown, id)
	}

	s.lastUsed = now

	return s, nil
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	_, ok := st.byID[id]
	delete(st.byID, id)

	return ok
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.byID)
}

func (st *sessionStore) expire(now time.Time) {
	for id, s := range st.byID {
		if now.Sub(s.lastUsed) > st.ttl {
			delete(st.byID, id)
		}
	}
}

func (st *sessionStore) evictOldest() {
	var oldest *session

	for _, s := range st.byID {
		if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
			oldest = s
		}
	}

	if oldest != nil {
		delete(st.byID, oldest.id)
	}
}
