// Package annotations provides a low-overhead event system for tracking
// iterator decisions (evolution, statistics, strategy choices, cursor
// recovery) and for debugging suspended computations.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Iterator lifecycle
	IteratorCreated  = "iterator/created"
	IteratorEvolved  = "iterator/evolved"
	IteratorFinished = "iterator/finished"

	// Statistics
	StatsSampled  = "stats/sampled"
	StatsComplete = "stats/complete"

	// isa duplicate elimination
	IsaDupMethod = "isa/dup-method"
	IsaDupSwitch = "isa/dup-switch"
	IsaJoin      = "isa/join"

	// linksto production method
	LinkstoRace   = "linksto/race"
	LinkstoMethod = "linksto/method"

	// Cursors
	CursorFrozen      = "cursor/frozen"
	CursorThawed      = "cursor/thawed"
	CursorRecovered   = "cursor/recovered"
	CursorOriginalHit = "cursor/original-hit"

	// Errors
	ErrorStateLost  = "error/state-lost"
	ErrorInvariant  = "error/invariant"
	ErrorBackend    = "error/backend"
	ErrorCursorText = "error/cursor.text"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Tee returns a handler that delivers each event to every non-nil handler.
func Tee(handlers ...Handler) Handler {
	var live []Handler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(event Event) {
		for _, h := range live {
			h(event)
		}
	}
}

// Collector accumulates events and forwards them to a handler.
// A nil *Collector is valid and discards everything.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	keep    bool
	mu      sync.Mutex
}

// NewCollector creates a collector that forwards to handler.
// Events are also retained for Events() when keep is true.
func NewCollector(handler Handler, keep bool) *Collector {
	return &Collector{
		enabled: handler != nil || keep,
		handler: handler,
		keep:    keep,
		events:  make([]Event, 0, 32),
	}
}

// Enabled reports whether events are being recorded.
// Callers use it to avoid building Data maps for nothing.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records a new event.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	if c.keep {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}

	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// Emit records an instantaneous event.
func (c *Collector) Emit(name string, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	now := time.Now()
	c.Add(Event{Name: name, Start: now, End: now, Data: data})
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all retained events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Named returns the retained events with the given name.
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears retained events.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
