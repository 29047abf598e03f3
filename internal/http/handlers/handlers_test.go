package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/jmylchreest/livefeed/internal/feed"
	"github.com/jmylchreest/livefeed/internal/models"
	"github.com/jmylchreest/livefeed/internal/sink"
	"github.com/jmylchreest/livefeed/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	status  feed.Status
	seeks   []float64
	seekErr error
}

func (p *fakePlayer) Status() feed.Status { return p.status }

func (p *fakePlayer) RequestSeek(delta float64) error {
	if p.seekErr != nil {
		return p.seekErr
	}
	p.seeks = append(p.seeks, delta)
	return nil
}

type fakeSink struct{ stats sink.Stats }

func (s fakeSink) Stats() sink.Stats { return s.stats }

type fakeTransport struct{ stats transport.Stats }

func (t fakeTransport) Stats() transport.Stats { return t.stats }

type fakeSessions struct {
	sessions []*models.Session
	err      error
	limits   []int
}

func (f *fakeSessions) GetByID(_ context.Context, id models.ULID) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) List(_ context.Context, limit int) ([]*models.Session, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.sessions) {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func statusCode(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func TestPlayerHandler_GetPlayer(t *testing.T) {
	player := &fakePlayer{status: feed.Status{State: "ready", Appends: 42}}
	h := NewPlayerHandler(player).
		WithSink(fakeSink{stats: sink.Stats{Fragments: 7}}).
		WithTransport(fakeTransport{stats: transport.Stats{Messages: 9}})

	out, err := h.GetPlayer(context.Background(), &GetPlayerInput{})
	require.NoError(t, err)
	assert.Equal(t, "ready", out.Body.Player.State)
	assert.Equal(t, uint64(42), out.Body.Player.Appends)
	require.NotNil(t, out.Body.Sink)
	assert.Equal(t, uint64(7), out.Body.Sink.Fragments)
	require.NotNil(t, out.Body.Transport)
	assert.Equal(t, uint64(9), out.Body.Transport.Messages)
}

func TestPlayerHandler_GetPlayer_NoExtras(t *testing.T) {
	h := NewPlayerHandler(&fakePlayer{})

	out, err := h.GetPlayer(context.Background(), &GetPlayerInput{})
	require.NoError(t, err)
	assert.Nil(t, out.Body.Sink)
	assert.Nil(t, out.Body.Transport)
}

func TestPlayerHandler_Seek(t *testing.T) {
	tests := []struct {
		name    string
		appends uint64
		applied bool
	}{
		{"before threshold", 5, false},
		{"at threshold", 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{status: feed.Status{Appends: tt.appends}}
			h := NewPlayerHandler(player)

			in := &SeekInput{}
			in.Body.Delta = -5
			out, err := h.Seek(context.Background(), in)
			require.NoError(t, err)
			assert.True(t, out.Body.Accepted)
			assert.Equal(t, tt.applied, out.Body.Applied)
			assert.Equal(t, []float64{-5}, player.seeks)
		})
	}
}

func TestPlayerHandler_Seek_CustomThreshold(t *testing.T) {
	player := &fakePlayer{status: feed.Status{Appends: 3}}
	h := NewPlayerHandler(player).WithMinAppendsForSeek(2)

	out, err := h.Seek(context.Background(), &SeekInput{})
	require.NoError(t, err)
	assert.True(t, out.Body.Applied)
}

func TestPlayerHandler_Seek_Errors(t *testing.T) {
	t.Run("closed streamer", func(t *testing.T) {
		h := NewPlayerHandler(&fakePlayer{seekErr: feed.ErrStreamerClosed})
		_, err := h.Seek(context.Background(), &SeekInput{})
		assert.Equal(t, http.StatusServiceUnavailable, statusCode(t, err))
	})

	t.Run("other failure", func(t *testing.T) {
		h := NewPlayerHandler(&fakePlayer{seekErr: errors.New("boom")})
		_, err := h.Seek(context.Background(), &SeekInput{})
		assert.Equal(t, http.StatusInternalServerError, statusCode(t, err))
	})
}

func TestPlayerHandler_Routes(t *testing.T) {
	_, api := humatest.New(t)
	player := &fakePlayer{status: feed.Status{State: "idle", Appends: 25}}
	NewPlayerHandler(player).Register(api)

	resp := api.Get("/api/v1/player")
	require.Equal(t, http.StatusOK, resp.Code)

	var body PlayerResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "idle", body.Player.State)

	resp = api.Post("/api/v1/player/seek", map[string]any{"delta": 3.5})
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, []float64{3.5}, player.seeks)
}

func newTestSession(t *testing.T, started time.Time) *models.Session {
	t.Helper()
	return &models.Session{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		URL:       "wss://example.com/live",
		State:     models.SessionStateCompleted,
		StartedAt: started,
	}
}

func TestSessionHandler_List(t *testing.T) {
	now := time.Now()
	store := &fakeSessions{sessions: []*models.Session{
		newTestSession(t, now),
		newTestSession(t, now.Add(-time.Hour)),
	}}
	h := NewSessionHandler(store)

	out, err := h.List(context.Background(), &ListSessionsInput{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Body.Count)
	assert.Equal(t, []int{1}, store.limits)
}

func TestSessionHandler_List_Empty(t *testing.T) {
	h := NewSessionHandler(&fakeSessions{})

	out, err := h.List(context.Background(), &ListSessionsInput{})
	require.NoError(t, err)
	assert.NotNil(t, out.Body.Sessions)
	assert.Zero(t, out.Body.Count)
}

func TestSessionHandler_List_Error(t *testing.T) {
	h := NewSessionHandler(&fakeSessions{err: errors.New("db down")})

	_, err := h.List(context.Background(), &ListSessionsInput{})
	assert.Equal(t, http.StatusInternalServerError, statusCode(t, err))
}

func TestSessionHandler_Get(t *testing.T) {
	s := newTestSession(t, time.Now())
	h := NewSessionHandler(&fakeSessions{sessions: []*models.Session{s}})

	out, err := h.Get(context.Background(), &GetSessionInput{ID: s.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, s.ID, out.Body.ID)

	_, err = h.Get(context.Background(), &GetSessionInput{ID: models.NewULID().String()})
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))

	_, err = h.Get(context.Background(), &GetSessionInput{ID: "not-a-ulid"})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
}

func TestSessionHandler_Routes(t *testing.T) {
	_, api := humatest.New(t)
	s := newTestSession(t, time.Now())
	NewSessionHandler(&fakeSessions{sessions: []*models.Session{s}}).Register(api)

	resp := api.Get("/api/v1/sessions?limit=5")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), s.ID.String())

	resp = api.Get("/api/v1/sessions/" + s.ID.String())
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.0.0", out.Body.Version)
	assert.NotEmpty(t, out.Body.Uptime)
	assert.Positive(t, out.Body.Goroutines)
	assert.Equal(t, "not_configured", out.Body.Checks["database"])
	assert.Equal(t, "not_configured", out.Body.Checks["player"])
}

func TestHealthHandler_Checks(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		status   feed.Status
		want     string
		database string
		player   string
	}{
		{"all ok", fakePinger{}, feed.Status{State: "ready"}, "healthy", "ok", "ready"},
		{"db failure", fakePinger{err: errors.New("refused")}, feed.Status{State: "idle"}, "degraded", "error: refused", "idle"},
		{"player stalled", fakePinger{}, feed.Status{State: "idle", Stalled: true}, "healthy", "ok", "stalled"},
		{"player failed", fakePinger{}, feed.Status{Error: "append rejected"}, "degraded", "ok", "error: append rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("dev").WithDB(tt.db).WithPlayer(&fakePlayer{status: tt.status})

			out, err := h.GetHealth(context.Background(), &HealthInput{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Body.Status)
			assert.Equal(t, tt.database, out.Body.Checks["database"])
			assert.Equal(t, tt.player, out.Body.Checks["player"])
		})
	}
}
