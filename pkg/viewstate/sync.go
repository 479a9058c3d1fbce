package viewstate

import "sync"

// Fragment is the URL fragment the view state is mirrored into.
type Fragment interface {
	Get() string
	Set(fragment string)
}

// Syncer mirrors view state into a Fragment. Programmatic writes raise a
// guard for the duration of the update, so the change listener does not
// decode and re-apply the state the application just wrote.
type Syncer struct {
	fragment      Fragment
	defaultMetric string
	apply         func(State)
	updating      bool
}

// NewSyncer creates a syncer. apply receives states decoded from fragment
// changes that did not originate from Write.
func NewSyncer(fragment Fragment, defaultMetric string, apply func(State)) *Syncer {
	return &Syncer{fragment: fragment, defaultMetric: defaultMetric, apply: apply}
}

// Read decodes the current fragment.
func (s *Syncer) Read() State {
	return Decode(s.fragment.Get(), s.defaultMetric)
}

// Write stores the state in the fragment without re-triggering apply.
func (s *Syncer) Write(state State) {
	s.updating = true
	defer func() { s.updating = false }()

	s.fragment.Set(Encode(state))
}

// HandleChange is the fragment-change listener.
func (s *Syncer) HandleChange() {
	if s.updating || s.apply == nil {
		return
	}

	s.apply(s.Read())
}

// Updating reports whether a programmatic write is in progress.
func (s *Syncer) Updating() bool {
	return s.updating
}

// MemoryFragment is an in-process fragment. Listeners run synchronously
// inside Set, and only when the value changes.
type MemoryFragment struct {
	mu        sync.Mutex
	value     string
	listeners []func()
}

// NewMemoryFragment creates a fragment holding initial.
func NewMemoryFragment(initial string) *MemoryFragment {
	return &MemoryFragment{value: initial}
}

// Get returns the current fragment.
func (f *MemoryFragment) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.value
}

// Set replaces the fragment and notifies listeners on change.
func (f *MemoryFragment) Set(fragment string) {
	f.mu.Lock()
	if f.value == fragment {
		f.mu.Unlock()

		return
	}

	f.value = fragment
	listeners := append([]func(){}, f.listeners...)
	f.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}

// OnChange registers a change listener.
func (f *MemoryFragment) OnChange(listener func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listeners = append(f.listeners, listener)
}
