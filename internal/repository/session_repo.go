// Package repository provides GORM-backed persistence for livefeed models.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/livefeed/internal/models"
)

// SessionRepository stores playback session history.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id models.ULID) (*models.Session, error)
	List(ctx context.Context, limit int) ([]*models.Session, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// sessionRepo implements SessionRepository using GORM.
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

// Create inserts a new session.
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validating session: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Update saves every field of an existing session.
func (r *sessionRepo) Update(ctx context.Context, session *models.Session) error {
	if session.ID.IsZero() {
		return fmt.Errorf("updating session: missing id")
	}
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

// GetByID returns the session with id, or nil when there is none.
func (r *sessionRepo) GetByID(ctx context.Context, id models.ULID) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session by ID: %w", err)
	}
	return &session, nil
}

// List returns the most recent sessions first. A limit <= 0 returns all.
func (r *sessionRepo) List(ctx context.Context, limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// DeleteOlderThan removes finished sessions that ended before cutoff.
func (r *sessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("ended_at IS NOT NULL AND ended_at < ?", cutoff).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
