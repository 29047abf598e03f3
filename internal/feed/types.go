// Package feed is the streaming buffer engine: it queues fragmented MP4
// chunks arriving from a transport, holds back everything until a playable
// ftyp/moov/keyframe-moof prefix has been seen, drives an appendable source
// buffer through a strict ready/busy handshake, and keeps the playhead within
// a target distance of the live edge.
package feed

import (
	"time"

	"github.com/jmylchreest/livefeed/pkg/bytesize"
)

// TimeRange is a contiguous span of buffered media, in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Span returns the length of the range in seconds.
func (r TimeRange) Span() float64 {
	return r.End - r.Start
}

// BufferedRanger reports the first contiguous buffered range, if any.
type BufferedRanger interface {
	Buffered() (TimeRange, bool)
}

// Downstream is an appendable media buffer. Only one Append or Remove may be
// in flight; Busy reports true until the implementation has signalled
// readiness back to the streamer.
type Downstream interface {
	BufferedRanger
	Append(data []byte) error
	Remove(start, end float64) error
	Busy() bool
}

// Playback is the media element whose position the engine steers.
type Playback interface {
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Duration() float64
	Paused() bool
	Play() error
}

// FeedState tracks whether the downstream buffer is processing an append.
type FeedState int

// Feed states.
const (
	FeedIdle FeedState = iota
	FeedLoading
)

// String returns the state name.
func (s FeedState) String() string {
	switch s {
	case FeedIdle:
		return "idle"
	case FeedLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Options holds the engine tuning constants.
type Options struct {
	// QueueMaxBytes bounds the pending queue; the oldest chunks are dropped
	// once it is reached.
	QueueMaxBytes bytesize.Size
	// TrimThreshold is the buffered span above which old media is removed
	// before any new append.
	TrimThreshold time.Duration
	// TrimAmount is how much media is removed from the start of the buffer.
	TrimAmount time.Duration
	// DriftCheckEvery runs the drift check after this many appends.
	DriftCheckEvery int
	// DriftTolerance is the allowed distance from the target offset.
	DriftTolerance time.Duration
	// MinAppendsForSeek is how many appends must succeed before seek
	// requests are honoured.
	MinAppendsForSeek int
	// AutoplayAfter starts paused playback once more appends than this
	// have succeeded.
	AutoplayAfter int
	// DropLogEvery throttles queue overflow logging.
	DropLogEvery int
}

// DefaultOptions returns the stock engine tuning.
func DefaultOptions() Options {
	return Options{
		QueueMaxBytes:     10 * bytesize.MiB,
		TrimThreshold:     60 * time.Second,
		TrimAmount:        10 * time.Second,
		DriftCheckEvery:   50,
		DriftTolerance:    1500 * time.Millisecond,
		MinAppendsForSeek: 20,
		AutoplayAfter:     20,
		DropLogEvery:      200,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.QueueMaxBytes <= 0 {
		o.QueueMaxBytes = d.QueueMaxBytes
	}
	if o.TrimThreshold <= 0 {
		o.TrimThreshold = d.TrimThreshold
	}
	if o.TrimAmount <= 0 {
		o.TrimAmount = d.TrimAmount
	}
	if o.DriftCheckEvery <= 0 {
		o.DriftCheckEvery = d.DriftCheckEvery
	}
	if o.DriftTolerance <= 0 {
		o.DriftTolerance = d.DriftTolerance
	}
	if o.MinAppendsForSeek < 0 {
		o.MinAppendsForSeek = d.MinAppendsForSeek
	}
	if o.AutoplayAfter < 0 {
		o.AutoplayAfter = d.AutoplayAfter
	}
	if o.DropLogEvery <= 0 {
		o.DropLogEvery = d.DropLogEvery
	}
	return o
}
