package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateKeeper_Ordering(t *testing.T) {
	var g GateKeeper

	chunks := [][]byte{
		moofChunk(true, 64),
		ftypChunk(16),
		moovChunk(16),
		moofChunk(false, 64),
		moofChunk(true, 64),
		mdatChunk(32),
	}
	want := []bool{false, true, true, false, true, true}

	for i, c := range chunks {
		assert.Equal(t, want[i], g.Admit(c), "chunk %d", i)
	}
	assert.Equal(t, Passthrough, g.State())
}

func TestGateKeeper_States(t *testing.T) {
	var g GateKeeper
	assert.Equal(t, AwaitingFtyp, g.State())

	assert.False(t, g.Admit(moovChunk(16)))
	assert.Equal(t, AwaitingFtyp, g.State())

	assert.True(t, g.Admit(ftypChunk(16)))
	assert.Equal(t, AwaitingMoov, g.State())

	assert.False(t, g.Admit(ftypChunk(16)), "a second ftyp is not a moov")
	assert.Equal(t, AwaitingMoov, g.State())

	assert.True(t, g.Admit(moovChunk(16)))
	assert.Equal(t, AwaitingKeyMoof, g.State())

	assert.False(t, g.Admit(mdatChunk(16)))
	assert.Equal(t, AwaitingKeyMoof, g.State())
}

func TestGateKeeper_PassthroughAdmitsAnything(t *testing.T) {
	var g GateKeeper
	for _, c := range bootstrap() {
		assert.True(t, g.Admit(c))
	}

	assert.True(t, g.Admit(moofChunk(false, 64)))
	assert.True(t, g.Admit(ftypChunk(16)))
	assert.True(t, g.Admit([]byte{1, 2, 3}))
	assert.True(t, g.Admit(nil))
	assert.Equal(t, Passthrough, g.State())
}

func TestGateKeeper_MalformedChunkDuringBootstrap(t *testing.T) {
	var g GateKeeper
	assert.False(t, g.Admit([]byte{'f', 't'}))
	assert.Equal(t, AwaitingFtyp, g.State())
}

func TestBootstrapState_String(t *testing.T) {
	assert.Equal(t, "awaiting_ftyp", AwaitingFtyp.String())
	assert.Equal(t, "passthrough", Passthrough.String())
	assert.Equal(t, "unknown", BootstrapState(99).String())
}
