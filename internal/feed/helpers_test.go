package feed

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"

	"github.com/jmylchreest/livefeed/internal/mp4box"
)

var errCorrupt = errors.New("corrupt media")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// box builds a compact ISO-BMFF box around payload.
func box(boxType string, payload ...[]byte) []byte {
	size := mp4box.HeaderSize
	for _, p := range payload {
		size += len(p)
	}
	out := make([]byte, mp4box.HeaderSize, size)
	binary.BigEndian.PutUint32(out, uint32(size))
	copy(out[4:8], boxType)
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

// padded grows a box to total bytes by appending a free child.
func padded(boxType string, total int, children ...[]byte) []byte {
	used := mp4box.HeaderSize
	for _, c := range children {
		used += len(c)
	}
	if pad := total - used; pad >= mp4box.HeaderSize {
		children = append(children, box("free", make([]byte, pad-mp4box.HeaderSize)))
	}
	return box(boxType, children...)
}

// moofChunk builds a moof whose trun does or does not declare first-sample flags.
func moofChunk(keyframe bool, total int) []byte {
	flags := byte(0x01)
	if keyframe {
		flags |= 0x04
	}
	trun := box(mp4box.TypeTrun, []byte{0, 0, 0, flags}, []byte{0, 0, 0, 1}, []byte{0, 0, 0, 0})
	tfhd := box(mp4box.TypeTfhd, []byte{0, 0x02, 0, 0, 0, 0, 0, 1})
	traf := box(mp4box.TypeTraf, tfhd, trun)
	mfhd := box("mfhd", []byte{0, 0, 0, 0, 0, 0, 0, 1})
	return padded(mp4box.TypeMoof, total, mfhd, traf)
}

func ftypChunk(total int) []byte { return padded(mp4box.TypeFtyp, total) }
func moovChunk(total int) []byte { return padded(mp4box.TypeMoov, total) }
func mdatChunk(total int) []byte { return padded(mp4box.TypeMdat, total) }

// bootstrap returns ftyp, moov and a keyframe moof.
func bootstrap() [][]byte {
	return [][]byte{ftypChunk(32), moovChunk(64), moofChunk(true, 128)}
}

// fakeDownstream records appends and stays busy until complete is called.
type fakeDownstream struct {
	appended  [][]byte
	removed   []TimeRange
	busy      bool
	buffered  TimeRange
	hasRange  bool
	appendErr error
	removeErr error
}

func (f *fakeDownstream) Append(data []byte) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, data)
	f.busy = true
	return nil
}

func (f *fakeDownstream) Remove(start, end float64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, TimeRange{Start: start, End: end})
	f.busy = true
	return nil
}

func (f *fakeDownstream) Buffered() (TimeRange, bool) { return f.buffered, f.hasRange }
func (f *fakeDownstream) Busy() bool                  { return f.busy }

func (f *fakeDownstream) setRange(start, end float64) {
	f.buffered = TimeRange{Start: start, End: end}
	f.hasRange = true
}

// complete finishes the in-flight operation and reports readiness.
func (f *fakeDownstream) complete(c *Controller) {
	f.busy = false
	c.OnDownstreamReady()
}

type fakePlayback struct {
	current  float64
	paused   bool
	plays    int
	playErr  error
	duration float64
	seeks    []float64
}

func (p *fakePlayback) CurrentTime() float64 { return p.current }
func (p *fakePlayback) SetCurrentTime(t float64) {
	p.current = t
	p.seeks = append(p.seeks, t)
}
func (p *fakePlayback) Duration() float64 { return p.duration }
func (p *fakePlayback) Paused() bool      { return p.paused }
func (p *fakePlayback) Play() error {
	if p.playErr != nil {
		return p.playErr
	}
	p.plays++
	p.paused = false
	return nil
}

// recorder collects emitted events.
type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
