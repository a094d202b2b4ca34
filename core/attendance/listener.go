package attendance

import (
	"sync"

	"github.com/trezcool/kilabu/core"
)

type ListenerState int

// Listener states
const (
	StateIdle ListenerState = iota
	StateSubscribing
	StateLive
	StateError
)

func (s ListenerState) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Listener keeps the sessions of a live query up to date.
// Every snapshot is regrouped from scratch and replaces the previous sessions.
// The caller owns it and must Close it on every exit path.
type Listener struct {
	mu          sync.RWMutex
	state       ListenerState
	sessions    []Session
	err         error
	closed      bool
	unsubscribe Unsubscribe
	changed     chan struct{}

	grouper Grouper
	logger  core.Logger
	metrics core.Metrics
}

// StartListening opens a live subscription for q.
// Failures are reported through the listener's Error state, never retried.
func (svc *Service) StartListening(q Query) *Listener {
	l := &Listener{
		state:   StateSubscribing,
		changed: make(chan struct{}, 1),
		grouper: svc.grouper,
		logger:  svc.logger,
		metrics: svc.metrics,
	}
	if q.Ordering.IsZero() {
		q.Ordering = DefaultOrdering
	}
	if q.Collection == "" {
		q.Collection = Collection
	}
	svc.metrics.ListenerOpened(1)

	if err := q.Validate(); err != nil {
		l.onError(err)
		return l
	}
	unsubscribe, err := svc.store.Subscribe(q, l.onSnapshot, l.onError)
	if err != nil {
		l.onError(err)
		return l
	}

	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
	return l
}

func (l *Listener) onSnapshot(records []Record) {
	sessions := l.grouper.Group(records)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == StateError {
		return
	}
	l.sessions = sessions
	l.state = StateLive
	l.metrics.ObserveSnapshot(len(records), len(sessions))
	l.notify()
}

func (l *Listener) onError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == StateError {
		return
	}
	l.err = &FeedError{Err: err}
	l.state = StateError
	l.logger.Error("attendance feed failed", l.err)
	l.notify()
}

// notify signals a change without blocking; pending signals coalesce. Callers hold l.mu.
func (l *Listener) notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// Sessions returns a copy of the latest sessions.
func (l *Listener) Sessions() []Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sessions := make([]Session, len(l.sessions))
	copy(sessions, l.sessions)
	return sessions
}

func (l *Listener) State() ListenerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the *FeedError that put the listener in the Error state.
func (l *Listener) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Changed receives a value after every state or sessions change and is closed by Close.
func (l *Listener) Changed() <-chan struct{} {
	return l.changed
}

// Close cancels the subscription and resets the listener to Idle.
// It is safe to call several times, from any state.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.state = StateIdle
	l.sessions = nil
	close(l.changed)
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	l.metrics.ListenerOpened(-1)
}
