package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) GetSession(ctx context.Context, userID string, platform models.Platform) (*models.Session, error) {
	var session models.Session
	if err := s.db.Store().Get(models.SessionID(userID, platform), &session); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, storageErr("failed to get session", err)
	}
	return &session, nil
}

func (s *SessionStorage) UpsertSession(ctx context.Context, session *models.Session) error {
	if session.UserID == "" || session.Platform == "" {
		return fmt.Errorf("session user and platform are required")
	}
	session.ID = models.SessionID(session.UserID, session.Platform)

	now := time.Now()
	var existing models.Session
	if err := s.db.Store().Get(session.ID, &existing); err == nil {
		session.CreatedAt = existing.CreatedAt
	} else if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return storageErr("failed to store session", err)
	}
	return nil
}

func (s *SessionStorage) DeleteSession(ctx context.Context, userID string, platform models.Platform) error {
	if err := s.db.Store().Delete(models.SessionID(userID, platform), &models.Session{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil // Already deleted
		}
		return storageErr("failed to delete session", err)
	}
	return nil
}

func (s *SessionStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []models.Session
	if err := s.db.Store().Find(&sessions, nil); err != nil {
		return nil, storageErr("failed to list sessions", err)
	}

	result := make([]*models.Session, len(sessions))
	for i := range sessions {
		result[i] = &sessions[i]
	}
	return result, nil
}
