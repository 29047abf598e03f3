package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/livefeed/internal/models"
)

// SessionReader is the read side of the session history store.
type SessionReader interface {
	GetByID(ctx context.Context, id models.ULID) (*models.Session, error)
	List(ctx context.Context, limit int) ([]*models.Session, error)
}

// SessionHandler serves playback session history.
type SessionHandler struct {
	sessions SessionReader
}

// NewSessionHandler creates a session history handler.
func NewSessionHandler(sessions SessionReader) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// ListSessionsInput is the input for listing sessions.
type ListSessionsInput struct {
	Limit int `query:"limit" default:"20" minimum:"0" maximum:"500" doc:"Maximum sessions to return, 0 for all"`
}

// ListSessionsOutput is the output for listing sessions.
type ListSessionsOutput struct {
	Body struct {
		Sessions []*models.Session `json:"sessions"`
		Count    int               `json:"count"`
	}
}

// GetSessionInput is the input for fetching one session.
type GetSessionInput struct {
	ID string `path:"id" doc:"Session ULID"`
}

// GetSessionOutput is the output for fetching one session.
type GetSessionOutput struct {
	Body *models.Session
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List playback sessions",
		Description: "Returns recorded sessions, most recent first",
		Tags:        []string{"Sessions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get a playback session",
		Tags:        []string{"Sessions"},
	}, h.Get)
}

// List returns the most recent sessions.
func (h *SessionHandler) List(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	sessions, err := h.sessions.List(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing sessions", err)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}

	out := &ListSessionsOutput{}
	out.Body.Sessions = sessions
	out.Body.Count = len(sessions)
	return out, nil
}

// Get returns a single session by ID.
func (h *SessionHandler) Get(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid session id", err)
	}

	session, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting session", err)
	}
	if session == nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return &GetSessionOutput{Body: session}, nil
}
