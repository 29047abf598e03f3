// Package sink provides a headless stand-in for a browser media element: an
// appendable source buffer that validates fMP4 media and tracks the buffered
// range, and a wall clock that plays through it.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/jmylchreest/livefeed/internal/codec"
	"github.com/jmylchreest/livefeed/internal/feed"
	"github.com/jmylchreest/livefeed/internal/mp4box"
	"github.com/jmylchreest/livefeed/internal/observability"
)

// Source buffer errors.
var (
	ErrBusy     = errors.New("source buffer is busy")
	ErrNoInit   = errors.New("media fragment before initialization segment")
	ErrRejected = errors.New("source buffer rejected media")
)

// Track describes a track announced by the initialization segment.
type Track struct {
	ID        int    `json:"id"`
	Kind      string `json:"kind"`
	Codec     string `json:"codec"`
	TimeScale uint32 `json:"timescale"`
}

// Stats holds source buffer counters.
type Stats struct {
	InitSegments  int     `json:"init_segments"`
	Fragments     uint64  `json:"fragments"`
	Bytes         uint64  `json:"bytes"`
	OrphanMdats   uint64  `json:"orphan_mdats"`
	SkippedBoxes  uint64  `json:"skipped_boxes"`
	BufferedTotal float64 `json:"buffered_total"`
	Tracks        []Track `json:"tracks"`
}

// Config configures a SourceBuffer.
type Config struct {
	Logger *slog.Logger
	// Recorder receives every accepted append, when set.
	Recorder io.Writer
	// ProcessingDelay simulates decode time before readiness is signalled.
	ProcessingDelay time.Duration
}

// SourceBuffer accepts ftyp/moov/moof/mdat boxes in sequence mode: each
// fragment is placed directly after the previous one, so the buffered range
// grows by the fragment's duration whatever its decode time says.
type SourceBuffer struct {
	mu       sync.Mutex
	logger   *slog.Logger
	recorder io.Writer
	delay    time.Duration
	onReady  func()

	busy       bool
	init       *fmp4.Init
	timescales map[int]uint32
	tracks     []Track
	moof       []byte

	buffered feed.TimeRange
	has      bool
	total    float64

	initSegments int
	fragments    uint64
	bytes        uint64
	orphanMdats  uint64
	skipped      uint64
}

// New creates an empty source buffer.
func New(cfg Config) *SourceBuffer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceBuffer{
		logger:     logger,
		recorder:   cfg.Recorder,
		delay:      cfg.ProcessingDelay,
		timescales: make(map[int]uint32),
	}
}

// OnReady sets the function called, from another goroutine, once an append
// or remove has completed and Busy reports false.
func (b *SourceBuffer) OnReady(fn func()) {
	b.mu.Lock()
	b.onReady = fn
	b.mu.Unlock()
}

// Busy reports whether an operation is in flight.
func (b *SourceBuffer) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// Buffered returns the buffered range.
func (b *SourceBuffer) Buffered() (feed.TimeRange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffered, b.has
}

// Stats returns a snapshot of the counters.
func (b *SourceBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		InitSegments:  b.initSegments,
		Fragments:     b.fragments,
		Bytes:         b.bytes,
		OrphanMdats:   b.orphanMdats,
		SkippedBoxes:  b.skipped,
		BufferedTotal: b.total,
		Tracks:        append([]Track(nil), b.tracks...),
	}
}

// Append validates data and extends the buffered range. Readiness is
// signalled asynchronously.
func (b *SourceBuffer) Append(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return ErrBusy
	}
	if err := b.ingest(data); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if b.recorder != nil {
		if _, err := b.recorder.Write(data); err != nil {
			observability.WithError(b.logger, err).Warn("recording append failed")
		}
	}
	b.bytes += uint64(len(data))
	b.start()
	return nil
}

// Remove drops media in [start, end). Only removal from the front of the
// buffered range is supported; other ranges are ignored.
func (b *SourceBuffer) Remove(start, end float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return ErrBusy
	}
	if end <= start {
		return fmt.Errorf("invalid remove range [%g, %g)", start, end)
	}
	if b.has && start <= b.buffered.Start && end > b.buffered.Start {
		b.buffered.Start = min(end, b.buffered.End)
		b.logger.Debug("removed buffered media",
			slog.Float64("start", start),
			slog.Float64("end", end),
			slog.Float64("buffered_start", b.buffered.Start),
		)
	}
	b.start()
	return nil
}

// start marks the buffer busy and schedules completion. Callers hold mu.
func (b *SourceBuffer) start() {
	b.busy = true
	time.AfterFunc(b.delay, b.complete)
}

func (b *SourceBuffer) complete() {
	b.mu.Lock()
	b.busy = false
	ready := b.onReady
	b.mu.Unlock()

	if ready != nil {
		ready()
	}
}

// ingest walks the top-level boxes of data. Callers hold mu.
func (b *SourceBuffer) ingest(data []byte) error {
	consumed, err := mp4box.Walk(data, func(h mp4box.Header, box []byte) error {
		switch h.Type {
		case mp4box.TypeFtyp:
			return nil
		case mp4box.TypeMoov:
			return b.parseInit(box)
		case mp4box.TypeMoof:
			if b.init == nil {
				return ErrNoInit
			}
			b.moof = box
			return nil
		case mp4box.TypeMdat:
			return b.parseFragment(box)
		default:
			b.skipped++
			return nil
		}
	})
	if err != nil {
		return err
	}
	if consumed != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", mp4box.ErrMalformedBox, len(data)-consumed)
	}
	return nil
}

func (b *SourceBuffer) parseInit(moov []byte) error {
	init := &fmp4.Init{}
	if err := init.Unmarshal(bytes.NewReader(moov)); err != nil {
		return fmt.Errorf("parsing init segment: %w", err)
	}

	b.init = init
	b.initSegments++
	b.timescales = make(map[int]uint32, len(init.Tracks))
	b.tracks = b.tracks[:0]
	for _, track := range init.Tracks {
		b.timescales[track.ID] = track.TimeScale
		name, kind := codec.FromMP4(track.Codec)
		b.tracks = append(b.tracks, Track{ID: track.ID, Kind: string(kind), Codec: name, TimeScale: track.TimeScale})
		b.logger.Info("track initialized",
			slog.Int("track_id", track.ID),
			slog.String("codec", name),
			slog.Uint64("timescale", uint64(track.TimeScale)),
		)
	}
	return nil
}

func (b *SourceBuffer) parseFragment(mdat []byte) error {
	if b.moof == nil {
		b.orphanMdats++
		b.logger.Debug("mdat without moof ignored", slog.Int("bytes", len(mdat)))
		return nil
	}
	if b.init == nil {
		return ErrNoInit
	}

	data := make([]byte, 0, len(b.moof)+len(mdat))
	data = append(data, b.moof...)
	data = append(data, mdat...)
	b.moof = nil

	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return fmt.Errorf("parsing fragment: %w", err)
	}

	duration := 0.0
	for _, part := range parts {
		for _, track := range part.Tracks {
			timescale, ok := b.timescales[track.ID]
			if !ok || timescale == 0 {
				return fmt.Errorf("fragment references unknown track %d", track.ID)
			}
			var ticks uint64
			for _, sample := range track.Samples {
				ticks += uint64(sample.Duration)
			}
			duration = max(duration, float64(ticks)/float64(timescale))
		}
	}

	if !b.has {
		b.buffered = feed.TimeRange{}
		b.has = true
	}
	b.buffered.End += duration
	b.total += duration
	b.fragments++
	return nil
}
