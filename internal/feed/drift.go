package feed

import (
	"log/slog"
	"math"
)

// DriftCorrector keeps the playhead at a target offset from the end of the
// buffered range. Offsets are in seconds and are <= 0, with 0 at the live edge.
type DriftCorrector struct {
	playback  Playback
	buffered  BufferedRanger
	tolerance float64
	target    float64
	emit      func(Event)
	logger    *slog.Logger
}

// NewDriftCorrector creates a corrector steering playback within the range
// reported by buffered.
func NewDriftCorrector(playback Playback, buffered BufferedRanger, tolerance float64, emit func(Event), logger *slog.Logger) *DriftCorrector {
	if emit == nil {
		emit = func(Event) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DriftCorrector{
		playback:  playback,
		buffered:  buffered,
		tolerance: tolerance,
		emit:      emit,
		logger:    logger,
	}
}

// Target returns the offset the corrector steers towards.
func (d *DriftCorrector) Target() float64 {
	return d.target
}

// Offset returns the current playhead distance from the buffered end.
func (d *DriftCorrector) Offset() (float64, bool) {
	r, ok := d.buffered.Buffered()
	if !ok {
		return 0, false
	}
	return d.playback.CurrentTime() - r.End, true
}

// Seek moves the playhead by delta seconds, clamped to the buffered range,
// and makes the resulting offset the new target. It returns the new target,
// or false when nothing is buffered yet.
func (d *DriftCorrector) Seek(delta float64) (float64, bool) {
	r, ok := d.buffered.Buffered()
	if !ok {
		d.logger.Debug("seek ignored: nothing buffered", slog.Float64("delta", delta))
		return d.target, false
	}

	newTime := d.playback.CurrentTime() + delta
	switch {
	case newTime > r.End:
		d.logger.Debug("seek clamped to live edge", slog.Float64("requested", newTime))
		newTime = r.End
	case newTime < r.Start:
		d.logger.Debug("seek clamped to buffer start", slog.Float64("requested", newTime))
		newTime = r.Start
	}

	d.playback.SetCurrentTime(newTime)
	d.target = newTime - r.End

	d.logger.Info("seeked",
		slog.Float64("delta", delta),
		slog.Float64("position", newTime),
		slog.Float64("target_offset", d.target),
	)
	d.emit(Event{Kind: EventDriftOffset, Offset: d.target})
	return d.target, true
}

// Check re-seeks to the target offset when the playhead has drifted further
// than the tolerance. It reports whether a correction was made.
func (d *DriftCorrector) Check() bool {
	offset, ok := d.Offset()
	if !ok {
		return false
	}
	if math.Abs(offset-d.target) <= d.tolerance {
		return false
	}

	d.logger.Info("drift correction",
		slog.Float64("offset", offset),
		slog.Float64("target_offset", d.target),
	)
	_, corrected := d.Seek(d.target)
	return corrected
}
