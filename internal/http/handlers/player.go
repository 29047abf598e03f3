// Package handlers provides control API handlers for livefeed.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/livefeed/internal/feed"
	"github.com/jmylchreest/livefeed/internal/sink"
	"github.com/jmylchreest/livefeed/internal/transport"
)

// Player is the running streamer as seen by the control API.
type Player interface {
	Status() feed.Status
	RequestSeek(delta float64) error
}

// SinkStatsProvider reports media sink counters.
type SinkStatsProvider interface {
	Stats() sink.Stats
}

// TransportStatsProvider reports transport counters.
type TransportStatsProvider interface {
	Stats() transport.Stats
}

// PlayerHandler serves player status and seek requests.
type PlayerHandler struct {
	player     Player
	sink       SinkStatsProvider
	transport  TransportStatsProvider
	minAppends uint64
}

// NewPlayerHandler creates a player handler.
func NewPlayerHandler(player Player) *PlayerHandler {
	return &PlayerHandler{
		player:     player,
		minAppends: uint64(feed.DefaultOptions().MinAppendsForSeek),
	}
}

// WithMinAppendsForSeek matches the seek threshold the streamer runs with.
func (h *PlayerHandler) WithMinAppendsForSeek(n int) *PlayerHandler {
	if n >= 0 {
		h.minAppends = uint64(n)
	}
	return h
}

// WithSink adds sink counters to status responses.
func (h *PlayerHandler) WithSink(s SinkStatsProvider) *PlayerHandler {
	h.sink = s
	return h
}

// WithTransport adds transport counters to status responses.
func (h *PlayerHandler) WithTransport(t TransportStatsProvider) *PlayerHandler {
	h.transport = t
	return h
}

// GetPlayerInput is the input for the player status endpoint.
type GetPlayerInput struct{}

// PlayerResponse is the player status body.
type PlayerResponse struct {
	Player    feed.Status      `json:"player"`
	Sink      *sink.Stats      `json:"sink,omitempty"`
	Transport *transport.Stats `json:"transport,omitempty"`
}

// GetPlayerOutput is the output for the player status endpoint.
type GetPlayerOutput struct {
	Body PlayerResponse
}

// SeekInput is the input for the seek endpoint.
type SeekInput struct {
	Body struct {
		Delta float64 `json:"delta" doc:"Relative seek in seconds; negative moves back from the live edge" example:"-5"`
	}
}

// SeekResponse acknowledges a queued seek.
type SeekResponse struct {
	Accepted bool    `json:"accepted"`
	Delta    float64 `json:"delta"`
	// Applied is false when too little media has been appended for the seek
	// to take effect.
	Applied bool `json:"applied"`
}

// SeekOutput is the output for the seek endpoint.
type SeekOutput struct {
	Body SeekResponse
}

// Register registers the player routes with the API.
func (h *PlayerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getPlayer",
		Method:      http.MethodGet,
		Path:        "/api/v1/player",
		Summary:     "Player status",
		Description: "Returns the latest flow-control, drift and playback snapshot",
		Tags:        []string{"Player"},
	}, h.GetPlayer)

	huma.Register(api, huma.Operation{
		OperationID:   "seekPlayer",
		Method:        http.MethodPost,
		Path:          "/api/v1/player/seek",
		Summary:       "Seek relative to the current target",
		Tags:          []string{"Player"},
		DefaultStatus: http.StatusAccepted,
	}, h.Seek)
}

// GetPlayer returns the current player status.
func (h *PlayerHandler) GetPlayer(ctx context.Context, input *GetPlayerInput) (*GetPlayerOutput, error) {
	resp := PlayerResponse{Player: h.player.Status()}
	if h.sink != nil {
		st := h.sink.Stats()
		resp.Sink = &st
	}
	if h.transport != nil {
		st := h.transport.Stats()
		resp.Transport = &st
	}
	return &GetPlayerOutput{Body: resp}, nil
}

// Seek queues a relative seek on the streamer.
func (h *PlayerHandler) Seek(ctx context.Context, input *SeekInput) (*SeekOutput, error) {
	if err := h.player.RequestSeek(input.Body.Delta); err != nil {
		if errors.Is(err, feed.ErrStreamerClosed) {
			return nil, huma.Error503ServiceUnavailable("player is not running")
		}
		return nil, huma.Error500InternalServerError("queueing seek", err)
	}
	return &SeekOutput{Body: SeekResponse{
		Accepted: true,
		Delta:    input.Body.Delta,
		Applied:  h.player.Status().Appends >= h.minAppends,
	}}, nil
}
