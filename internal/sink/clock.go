package sink

import (
	"sync"
	"time"

	"github.com/jmylchreest/livefeed/internal/feed"
)

// Clock is a playback position that advances with wall time while playing
// and stalls at the edges of the buffered range.
type Clock struct {
	mu       sync.Mutex
	buffered feed.BufferedRanger
	now      func() time.Time

	position float64
	anchor   time.Time
	paused   bool
	stalls   uint64
}

// NewClock creates a paused clock over buffered.
func NewClock(buffered feed.BufferedRanger) *Clock {
	return newClock(buffered, time.Now)
}

func newClock(buffered feed.BufferedRanger, now func() time.Time) *Clock {
	return &Clock{buffered: buffered, now: now, anchor: now(), paused: true}
}

// CurrentTime returns the playback position in seconds.
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance()
}

// SetCurrentTime moves the playback position.
func (c *Clock) SetCurrentTime(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = seconds
	c.anchor = c.now()
}

// Duration reports the end of the buffered media, which grows as a live
// stream is appended.
func (c *Clock) Duration() float64 {
	r, ok := c.buffered.Buffered()
	if !ok {
		return 0
	}
	return r.End
}

// Paused reports whether the clock is stopped.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Play starts the clock.
func (c *Clock) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		c.anchor = c.now()
	}
	return nil
}

// Pause stops the clock at the current position.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	c.paused = true
}

// Stalls returns how many times playback ran into the end of the buffer.
func (c *Clock) Stalls() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalls
}

// advance folds elapsed wall time into position. Callers hold mu.
func (c *Clock) advance() float64 {
	now := c.now()
	if !c.paused {
		c.position += now.Sub(c.anchor).Seconds()
	}
	c.anchor = now

	r, ok := c.buffered.Buffered()
	if !ok {
		return c.position
	}
	switch {
	case c.position > r.End:
		if !c.paused {
			c.stalls++
		}
		c.position = r.End
	case c.position < r.Start:
		c.position = r.Start
	}
	return c.position
}
