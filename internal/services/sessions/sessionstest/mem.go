// Package sessionstest provides an in-memory session storage and a ready
// session store for tests.
package sessionstest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
	"github.com/ternarybob/jobpilot/internal/services/vault"
)

// Key is a fixed 32-byte hex encryption key
var Key = strings.Repeat("ab", 32)

// Storage is an in-memory interfaces.SessionStorage
type Storage struct {
	mu   sync.Mutex
	rows map[string]*models.Session

	// FailPut makes UpsertSession fail with common.ErrStorage
	FailPut bool
}

func NewStorage() *Storage { return &Storage{rows: map[string]*models.Session{}} }

func (s *Storage) GetSession(_ context.Context, userID string, platform models.Platform) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[userID+"/"+string(platform)]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *Storage) UpsertSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return common.ErrStorage
	}
	cp := *session
	s.rows[session.UserID+"/"+string(session.Platform)] = &cp
	return nil
}

func (s *Storage) DeleteSession(_ context.Context, userID string, platform models.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, userID+"/"+string(platform))
	return nil
}

func (s *Storage) ListSessions(context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Storage) SetFailPut(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailPut = fail
}

// NewStore returns a wall-clock session store over a fresh Storage
func NewStore(t *testing.T) (*sessions.Store, *Storage) {
	t.Helper()
	v, err := vault.New(Key)
	require.NoError(t, err)
	storage := NewStorage()
	return sessions.NewStore(storage, v, nil, arbor.NewLogger()), storage
}

// Connect stores a credential for (userID, platform) valid for ttl
func Connect(t *testing.T, store *sessions.Store, userID string, platform models.Platform, cookies []models.Cookie, ttl time.Duration) {
	t.Helper()
	_, err := store.Upsert(context.Background(), userID, platform, &models.Credential{Cookies: cookies}, ttl)
	require.NoError(t, err)
}
