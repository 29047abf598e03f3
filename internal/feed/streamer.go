package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/livefeed/internal/observability"
)

const defaultInboxSize = 1024

// Status is a snapshot of a streamer, safe to read from any goroutine.
type Status struct {
	SessionID    string    `json:"session_id"`
	Opened       bool      `json:"opened"`
	State        string    `json:"state"`
	Bootstrap    string    `json:"bootstrap"`
	Appends      uint64    `json:"appends"`
	Drops        uint64    `json:"drops"`
	DroppedBytes uint64    `json:"dropped_bytes"`
	Suppressed   uint64    `json:"suppressed"`
	Trims        uint64    `json:"trims"`
	QueuedChunks int       `json:"queued_chunks"`
	QueuedBytes  int       `json:"queued_bytes"`
	Buffered     TimeRange `json:"buffered"`
	HasBuffered  bool      `json:"has_buffered"`
	Position     float64   `json:"position"`
	Offset       float64   `json:"offset"`
	TargetOffset float64   `json:"target_offset"`
	Playing      bool      `json:"playing"`
	Stalled      bool      `json:"stalled"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StreamerConfig configures a Streamer.
type StreamerConfig struct {
	Options    Options
	Downstream Downstream
	Playback   Playback
	Logger     *slog.Logger
	SessionID  string
	// InboxSize bounds the number of pending loop events (default 1024).
	InboxSize int
}

// Streamer owns the engine for one playback session. Transport and downstream
// callbacks are posted to a single loop goroutine and each runs to completion
// before the next, so the engine itself needs no locking.
type Streamer struct {
	opts       Options
	playback   Playback
	downstream Downstream
	controller *Controller
	drift      *DriftCorrector
	events     Dispatcher
	logger     *slog.Logger
	sessionID  string

	inbox chan func()
	done  chan struct{}
	once  sync.Once

	opened     bool
	autoplayed bool

	mu     sync.RWMutex
	status Status
	err    error
}

// NewStreamer wires a controller and drift corrector around the given
// downstream buffer and playback.
func NewStreamer(cfg StreamerConfig) *Streamer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Options.withDefaults()
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}

	s := &Streamer{
		opts:       opts,
		playback:   cfg.Playback,
		downstream: cfg.Downstream,
		logger:     logger,
		sessionID:  cfg.SessionID,
		inbox:      make(chan func(), inboxSize),
		done:       make(chan struct{}),
	}
	s.drift = NewDriftCorrector(cfg.Playback, cfg.Downstream, opts.DriftTolerance.Seconds(), s.events.Emit, logger)
	s.controller = NewController(opts, cfg.Downstream, s.drift, s.events.Emit, logger)
	s.refreshStatus()
	return s
}

// Subscribe registers a listener for engine events. Listeners run on the
// loop goroutine and must not block.
func (s *Streamer) Subscribe(l Listener) {
	s.events.Subscribe(l)
}

// Run processes posted events until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })

	s.logger.Info("streamer started", slog.String("session_id", s.sessionID))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopped",
				slog.String("session_id", s.sessionID),
				slog.Uint64("appends", s.controller.Appends()),
			)
			return ctx.Err()
		case fn := <-s.inbox:
			fn()
			s.refreshStatus()
		}
	}
}

// OnOpen reports that the transport connected.
func (s *Streamer) OnOpen() error {
	return s.post(s.handleOpen)
}

// OnChunk hands a received chunk to the engine. The chunk must not be
// modified afterwards.
func (s *Streamer) OnChunk(chunk []byte) error {
	return s.post(func() { s.handleChunk(chunk) })
}

// NotifyReady reports that the downstream buffer finished an append or
// remove. Implementations call it from any goroutine after clearing Busy.
func (s *Streamer) NotifyReady() {
	_ = s.post(s.handleReady)
}

// RequestSeek asks for a relative seek in seconds.
func (s *Streamer) RequestSeek(delta float64) error {
	return s.post(func() { s.handleSeek(delta) })
}

// Status returns the latest snapshot.
func (s *Streamer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the terminal append error, if any.
func (s *Streamer) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Streamer) post(fn func()) error {
	select {
	case <-s.done:
		return ErrStreamerClosed
	default:
	}
	select {
	case s.inbox <- fn:
		return nil
	case <-s.done:
		return ErrStreamerClosed
	}
}

func (s *Streamer) handleOpen() {
	if s.opened {
		s.logger.Info("transport reopened", slog.String("bootstrap", s.controller.Stats().Bootstrap.String()))
		return
	}
	s.opened = true
	s.logger.Info("transport opened, playback ready")
	s.events.Emit(Event{Kind: EventPlaybackReady, Playback: s.playback})
}

func (s *Streamer) handleChunk(chunk []byte) {
	s.controller.OnChunkReceived(chunk)

	if s.autoplayed || s.controller.Appends() <= uint64(s.opts.AutoplayAfter) {
		return
	}
	s.autoplayed = true
	if !s.playback.Paused() {
		return
	}
	if err := s.playback.Play(); err != nil {
		observability.WithError(s.logger, err).Warn("autoplay failed")
		return
	}
	s.logger.Info("playback started", slog.Uint64("appends", s.controller.Appends()))
	s.events.Emit(Event{Kind: EventPlaybackStarted, Playback: s.playback})
}

func (s *Streamer) handleReady() {
	s.controller.OnDownstreamReady()
}

func (s *Streamer) handleSeek(delta float64) {
	if s.controller.Appends() < uint64(s.opts.MinAppendsForSeek) {
		s.logger.Debug("seek ignored: not enough media yet",
			slog.Float64("delta", delta),
			slog.Uint64("appends", s.controller.Appends()),
		)
		return
	}
	s.drift.Seek(delta)
}

func (s *Streamer) refreshStatus() {
	stats := s.controller.Stats()
	st := Status{
		SessionID:    s.sessionID,
		Opened:       s.opened,
		State:        stats.State.String(),
		Bootstrap:    stats.Bootstrap.String(),
		Appends:      stats.Appends,
		Drops:        stats.Drops,
		DroppedBytes: stats.DroppedBytes,
		Suppressed:   stats.Suppressed,
		Trims:        stats.Trims,
		QueuedChunks: stats.QueuedChunks,
		QueuedBytes:  stats.QueuedBytes,
		TargetOffset: s.drift.Target(),
		Stalled:      stats.Stalled,
		UpdatedAt:    time.Now(),
	}
	if s.playback != nil {
		st.Position = s.playback.CurrentTime()
		st.Playing = !s.playback.Paused()
	}
	if r, ok := s.downstream.Buffered(); ok {
		st.Buffered = r
		st.HasBuffered = true
		st.Offset = st.Position - r.End
	}
	err := s.controller.Err()
	if err != nil {
		st.Error = err.Error()
	}

	s.mu.Lock()
	s.status = st
	s.err = err
	s.mu.Unlock()
}
