package feed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/livefeed/internal/mp4box"
	"github.com/jmylchreest/livefeed/internal/observability"
)

// ControllerStats is a point-in-time view of the controller counters.
type ControllerStats struct {
	State          FeedState
	Bootstrap      BootstrapState
	Appends        uint64
	Drops          uint64
	DroppedBytes   uint64
	Suppressed     uint64
	Trims          uint64
	QueuedChunks   int
	QueuedBytes    int
	Stalled        bool
	LastAppendType string
}

// Controller coordinates the pending queue, the bootstrap gate and the
// downstream buffer. It is the only caller of Downstream.Append and
// Downstream.Remove, and must be driven from a single goroutine.
type Controller struct {
	opts       Options
	queue      PendingQueue
	gate       GateKeeper
	downstream Downstream
	drift      *DriftCorrector
	emit       func(Event)
	logger     *slog.Logger
	dropLog    rate.Sometimes

	state     FeedState
	listening bool
	err       error

	appends        uint64
	drops          uint64
	droppedBytes   uint64
	suppressed     uint64
	trims          uint64
	lastAppendType string
}

// NewController creates a controller feeding downstream. drift may be nil,
// in which case periodic drift checks are skipped.
func NewController(opts Options, downstream Downstream, drift *DriftCorrector, emit func(Event), logger *slog.Logger) *Controller {
	opts = opts.withDefaults()
	if emit == nil {
		emit = func(Event) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		opts:       opts,
		downstream: downstream,
		drift:      drift,
		emit:       emit,
		logger:     logger,
		dropLog:    rate.Sometimes{First: 1, Every: opts.DropLogEvery},
		listening:  true,
	}
}

// State returns the feed state.
func (c *Controller) State() FeedState {
	return c.state
}

// Appends returns the number of successful appends.
func (c *Controller) Appends() uint64 {
	return c.appends
}

// Err returns the fatal append error, if the feed has stalled.
func (c *Controller) Err() error {
	return c.err
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() ControllerStats {
	return ControllerStats{
		State:          c.state,
		Bootstrap:      c.gate.State(),
		Appends:        c.appends,
		Drops:          c.drops,
		DroppedBytes:   c.droppedBytes,
		Suppressed:     c.suppressed,
		Trims:          c.trims,
		QueuedChunks:   c.queue.Len(),
		QueuedBytes:    c.queue.LenBytes(),
		Stalled:        c.err != nil,
		LastAppendType: c.lastAppendType,
	}
}

// OnChunkReceived queues a chunk, trims the queue to budget and kicks the
// feed when no append is outstanding. The kick is needed because readiness is
// only signalled after an append, so the first chunk and any chunk arriving
// on an empty queue would otherwise wait forever.
func (c *Controller) OnChunkReceived(chunk []byte) {
	c.logger.Log(context.Background(), observability.LevelTrace, "chunk received", slog.Int("bytes", len(chunk)))

	c.queue.Push(chunk)
	for _, size := range c.queue.EvictToBudget(int(c.opts.QueueMaxBytes)) {
		c.drops++
		c.droppedBytes += uint64(size)
		c.dropLog.Do(func() {
			c.logger.Warn("queue overflow: dropped oldest chunk",
				slog.Int("bytes", size),
				slog.Uint64("total_drops", c.drops),
				slog.Int("queued_bytes", c.queue.LenBytes()),
			)
		})
	}

	if c.state == FeedIdle {
		c.Pump()
	}
}

// OnDownstreamReady handles the downstream completion signal. The downstream
// clears busy before its signal is delivered, so a chunk handled in between
// may already have started the next append; that append's own signal
// resumes the feed.
func (c *Controller) OnDownstreamReady() {
	if !c.listening || c.downstream.Busy() {
		return
	}
	c.state = FeedIdle
	c.Pump()
}

// Pump makes at most one decision: trim the downstream buffer, go idle, drop
// a gated chunk, or append one chunk.
func (c *Controller) Pump() {
	if c.err != nil || c.downstream.Busy() {
		return
	}

	if r, ok := c.downstream.Buffered(); ok && r.Span() > c.opts.TrimThreshold.Seconds() {
		end := r.Start + c.opts.TrimAmount.Seconds()
		c.logger.Debug("trimming downstream buffer",
			slog.Float64("from", r.Start),
			slog.Float64("to", end),
		)
		if err := c.downstream.Remove(r.Start, end); err != nil {
			observability.WithError(c.logger, err).Warn("downstream remove failed")
		} else {
			c.trims++
		}
		c.state = FeedIdle
		return
	}

	chunk, ok := c.queue.PopFront()
	if !ok {
		c.state = FeedIdle
		return
	}

	before := c.gate.State()
	if !c.gate.Admit(chunk) {
		c.suppressed++
		c.logger.Debug("chunk held back until bootstrap completes",
			slog.String("box", mp4box.TopLevelType(chunk)),
			slog.String("bootstrap", before.String()),
		)
		return
	}
	if after := c.gate.State(); after != before {
		c.logger.Info("bootstrap advanced",
			slog.String("from", before.String()),
			slog.String("to", after.String()),
		)
	}

	if err := c.downstream.Append(chunk); err != nil {
		c.fail(err)
		return
	}

	c.state = FeedLoading
	c.appends++
	c.lastAppendType = mp4box.TopLevelType(chunk)

	if c.appends%uint64(c.opts.DriftCheckEvery) == 0 {
		c.periodic()
	}
}

// fail stops the feed for the rest of the session.
func (c *Controller) fail(err error) {
	c.err = fmt.Errorf("%w: %w", ErrAppend, err)
	c.listening = false
	c.state = FeedLoading

	observability.WithError(c.logger, err).Error("append rejected, feed stopped",
		slog.Uint64("appends", c.appends),
	)
	c.emit(Event{Kind: EventStreamError, Err: c.err})
}

// periodic runs the drift check and publishes the current offset.
func (c *Controller) periodic() {
	if c.drift == nil {
		return
	}
	c.drift.Check()

	offset, ok := c.drift.Offset()
	if !ok {
		return
	}
	c.emit(Event{Kind: EventDriftOffset, Offset: offset})

	r, _ := c.downstream.Buffered()
	c.logger.Debug("feed progress",
		slog.Uint64("appends", c.appends),
		slog.Float64("buffered_start", r.Start),
		slog.Float64("buffered_end", r.End),
		slog.Float64("position", c.drift.playback.CurrentTime()),
		slog.Float64("duration", c.drift.playback.Duration()),
		slog.Uint64("drops", c.drops),
	)
}
