package feed

import "sync"

// EventKind identifies an outbound engine event.
type EventKind int

// Event kinds.
const (
	// EventPlaybackReady fires once when the transport opens; Playback is set.
	EventPlaybackReady EventKind = iota
	// EventDriftOffset carries the playhead distance from the live edge.
	EventDriftOffset
	// EventStreamError is terminal; Err wraps ErrAppend.
	EventStreamError
	// EventPlaybackStarted fires when the engine starts paused playback.
	EventPlaybackStarted
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventPlaybackReady:
		return "playback_ready"
	case EventDriftOffset:
		return "drift_offset"
	case EventStreamError:
		return "stream_error"
	case EventPlaybackStarted:
		return "playback_started"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to subscribers.
type Event struct {
	Kind     EventKind
	Offset   float64
	Playback Playback
	Err      error
}

// Listener receives events.
type Listener func(Event)

// Dispatcher fans events out to listeners in subscription order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

// Subscribe registers a listener.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Emit calls every listener before returning.
func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}
