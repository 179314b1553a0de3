// Package ictrace records inline cache state transitions.
//
// The ic engine reports every site transition, every handler it declines
// to compile and every shape invalidation as an Event. Sinks keep the
// events in memory, forward them to the log, or persist them to SQLite
// for later inspection with icstat.
package ictrace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// Reason says why an event was recorded.
type Reason string

const (
	ReasonTransition   Reason = "transition"
	ReasonUncacheable  Reason = "uncacheable"
	ReasonInvalidation Reason = "invalidation"
	ReasonFlush        Reason = "flush"
)

// Event is one observed change of inline cache state.
type Event struct {
	Isolate uuid.UUID
	Site    int
	// Kind is the site's access kind, e.g. "load" or "keyed-store".
	Kind string
	// Name is the accessed property name, empty for keyed and compare sites.
	Name    string
	From    string
	To      string
	Shape   uint32
	Handler string
	Reason  Reason
	Detail  string
	Time    time.Time
}

func (e Event) String() string {
	name := e.Name
	if name == "" {
		name = "-"
	}
	s := fmt.Sprintf("%s#%d %s %s: %s -> %s", e.Kind, e.Site, name, e.Reason, e.From, e.To)
	if e.Shape != 0 {
		s += fmt.Sprintf(" shape#%d", e.Shape)
	}
	if e.Handler != "" {
		s += " " + e.Handler
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// Sink receives events. Record must not block for long; the engine calls
// it on the access path.
type Sink interface {
	Record(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}

// ---------------------------------------------------------------------------
// Ring
// ---------------------------------------------------------------------------

// Ring keeps the most recent events in a fixed-size buffer.
type Ring struct {
	mu      sync.Mutex
	events  []Event
	next    int
	full    bool
	dropped uint64
}

// NewRing creates a ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{events: make([]Event, size)}
}

// Record stores e, overwriting the oldest event when the ring is full.
func (r *Ring) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		r.dropped++
	}
	r.events[r.next] = e
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
}

// Events returns the buffered events, oldest first.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// Dropped returns how many events were overwritten.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.events)
	}
	return r.next
}

// ---------------------------------------------------------------------------
// Log and fan-out sinks
// ---------------------------------------------------------------------------

// LogSink writes events to a commonlog logger. Transitions log at debug
// level, everything else at info.
type LogSink struct {
	log commonlog.Logger
}

// NewLogSink creates a sink logging under name.
func NewLogSink(name string) *LogSink {
	return &LogSink{log: commonlog.GetLogger(name)}
}

func (s *LogSink) Record(e Event) {
	if e.Reason == ReasonTransition {
		s.log.Debug(e.String())
		return
	}
	s.log.Info(e.String())
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}
