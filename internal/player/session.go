// Package player runs one playback session: the websocket feed drives the
// streamer, the streamer feeds the sink, and the outcome is written to the
// session history.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/livefeed/internal/feed"
	"github.com/jmylchreest/livefeed/internal/models"
	"github.com/jmylchreest/livefeed/internal/observability"
	"github.com/jmylchreest/livefeed/internal/transport"
	"github.com/jmylchreest/livefeed/internal/urlutil"
)

const (
	defaultCheckpointInterval = 30 * time.Second
	storeTimeout              = 5 * time.Second
)

// Source delivers feed callbacks until it fails or ctx ends.
type Source interface {
	Run(ctx context.Context, h transport.Handler) error
}

// Sink is the media consumer behind the engine.
type Sink interface {
	feed.Downstream
	OnReady(fn func())
}

// StallCounter reports how often playback ran out of buffered media.
// sink.Clock implements it.
type StallCounter interface {
	Stalls() uint64
}

// SessionStore persists session history.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
}

// Config configures a Session.
type Config struct {
	URL     string
	Options feed.Options
	// CheckpointInterval is how often running counters are saved.
	CheckpointInterval time.Duration
	Logger             *slog.Logger
}

// Session wires a source, the streamer and a sink for one run.
type Session struct {
	cfg      Config
	source   Source
	sink     Sink
	playback feed.Playback
	store    SessionStore
	streamer *feed.Streamer
	record   *models.Session
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	failure error
	cancel  context.CancelCauseFunc
}

// New builds a session. store may be nil to skip history. A playback that
// implements StallCounter lets a completed run be recorded as stalled.
func New(cfg Config, source Source, sink Sink, playback feed.Playback, store SessionStore) *Session {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	id := models.NewULID()
	logger := observability.WithSession(observability.WithComponent(base, "player"), id.String())

	s := &Session{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		playback: playback,
		store:    store,
		logger:   logger,
		now:      time.Now,
		record: &models.Session{
			BaseModel: models.BaseModel{ID: id},
			URL:       urlutil.Redact(cfg.URL),
			State:     models.SessionStateRunning,
		},
	}

	s.streamer = feed.NewStreamer(feed.StreamerConfig{
		Options:    cfg.Options,
		Downstream: sink,
		Playback:   playback,
		Logger:     base,
		SessionID:  id.String(),
	})
	sink.OnReady(s.streamer.NotifyReady)
	s.streamer.Subscribe(s.onEvent)

	return s
}

// ID returns the session ULID.
func (s *Session) ID() models.ULID {
	return s.record.ID
}

// Streamer exposes the engine for status and seek requests.
func (s *Session) Streamer() *feed.Streamer {
	return s.streamer
}

// Run plays the feed until ctx ends, the source gives up, or the engine hits
// a fatal append error. Cancelling ctx is a normal stop and returns nil.
func (s *Session) Run(ctx context.Context) (*models.Session, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.record.StartedAt = s.now()
	s.save(ctx, s.createRecord)

	s.logger.Info("session started", slog.String("url", s.record.URL))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.streamer.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.checkpoints(runCtx)
	}()

	srcErr := s.source.Run(runCtx, s.streamer)
	cancel(srcErr)
	wg.Wait()

	err := s.finish(ctx, srcErr)
	return s.record, err
}

func (s *Session) onEvent(e feed.Event) {
	switch e.Kind {
	case feed.EventStreamError:
		s.mu.Lock()
		s.failure = e.Err
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel(e.Err)
		}
	case feed.EventPlaybackStarted:
		s.logger.Info("playback started")
	}
}

func (s *Session) checkpoints(ctx context.Context) {
	if s.store == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fill(s.streamer.Status())
			s.save(ctx, s.updateRecord)
		}
	}
}

// finish decides the final state and stores it.
func (s *Session) finish(parent context.Context, srcErr error) error {
	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()

	status := s.streamer.Status()
	s.fill(status)
	ended := s.now()
	s.record.EndedAt = &ended

	var err error
	switch {
	case failure != nil:
		s.record.State = models.SessionStateFailed
		err = failure
	case parent.Err() != nil, srcErr == nil, errors.Is(srcErr, transport.ErrFeedClosed):
		s.record.State = models.SessionStateCompleted
		if s.stalls() > 0 {
			s.record.State = models.SessionStateStalled
		}
	default:
		s.record.State = models.SessionStateFailed
		err = fmt.Errorf("feed: %w", srcErr)
	}
	if err != nil {
		s.record.Error = err.Error()
	}

	s.save(parent, s.updateRecord)

	s.logger.Info("session ended",
		slog.String("state", string(s.record.State)),
		slog.Uint64("appends", s.record.Appends),
		slog.Uint64("drops", s.record.Drops),
		slog.Duration("duration", s.record.Duration(ended)),
	)
	return err
}

func (s *Session) stalls() uint64 {
	if c, ok := s.playback.(StallCounter); ok {
		return c.Stalls()
	}
	return 0
}

func (s *Session) fill(st feed.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Appends = st.Appends
	s.record.Drops = st.Drops
	s.record.DroppedBytes = st.DroppedBytes
	s.record.Suppressed = st.Suppressed
	s.record.Trims = st.Trims
	if st.HasBuffered {
		s.record.BufferedSecs = st.Buffered.End - st.Buffered.Start
	}
	if stats, ok := s.source.(interface{ Stats() transport.Stats }); ok {
		s.record.Connects = stats.Stats().Connects
	}
}

func (s *Session) createRecord(ctx context.Context) error {
	return s.store.Create(ctx, s.record)
}

func (s *Session) updateRecord(ctx context.Context) error {
	return s.store.Update(ctx, s.record)
}

// save runs op with a bounded context that outlives cancellation of parent.
// Store failures are logged; history never stops playback.
func (s *Session) save(parent context.Context, op func(context.Context) error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), storeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := op(ctx); err != nil {
		observability.WithError(s.logger, err).Warn("saving session history failed")
	}
}
