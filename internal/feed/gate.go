package feed

import "github.com/jmylchreest/livefeed/internal/mp4box"

// BootstrapState is the gate's progress through the ftyp, moov, keyframe moof
// prefix. It only ever advances.
type BootstrapState int

// Bootstrap states.
const (
	AwaitingFtyp BootstrapState = iota
	AwaitingMoov
	AwaitingKeyMoof
	Passthrough
)

// String returns the state name.
func (s BootstrapState) String() string {
	switch s {
	case AwaitingFtyp:
		return "awaiting_ftyp"
	case AwaitingMoov:
		return "awaiting_moov"
	case AwaitingKeyMoof:
		return "awaiting_key_moof"
	case Passthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// GateKeeper decides which chunks may reach the downstream buffer. Before
// Passthrough only the next expected bootstrap box is admitted.
type GateKeeper struct {
	state BootstrapState
}

// State returns the current bootstrap state.
func (g *GateKeeper) State() BootstrapState {
	return g.state
}

// Admit reports whether chunk may be appended, advancing the state when the
// chunk completes the next bootstrap step.
func (g *GateKeeper) Admit(chunk []byte) bool {
	boxType := mp4box.TopLevelType(chunk)

	switch g.state {
	case AwaitingFtyp:
		if boxType != mp4box.TypeFtyp {
			return false
		}
		g.state = AwaitingMoov
	case AwaitingMoov:
		if boxType != mp4box.TypeMoov {
			return false
		}
		g.state = AwaitingKeyMoof
	case AwaitingKeyMoof:
		if boxType != mp4box.TypeMoof || !mp4box.MoofSignalsFirstSample(chunk) {
			return false
		}
		g.state = Passthrough
	}
	return true
}
