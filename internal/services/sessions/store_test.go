package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/vault"
)

type memStorage struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	failPut  error
}

func newMemStorage() *memStorage {
	return &memStorage{sessions: map[string]models.Session{}}
}

func (m *memStorage) GetSession(ctx context.Context, userID string, platform models.Platform) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[models.SessionID(userID, platform)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStorage) UpsertSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	session.ID = models.SessionID(session.UserID, session.Platform)
	m.sessions[session.ID] = *session
	return nil
}

func (m *memStorage) DeleteSession(ctx context.Context, userID string, platform models.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, models.SessionID(userID, platform))
	return nil
}

func (m *memStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Session{}
	for _, s := range m.sessions {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

func newTestStore(t *testing.T) (*Store, *memStorage, *common.FixedClock) {
	t.Helper()
	v, err := vault.New(strings.Repeat("k", 32))
	require.NoError(t, err)
	mem := newMemStorage()
	clock := &common.FixedClock{T: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	return NewStore(mem, v, clock, arbor.NewLogger()), mem, clock
}

func TestUpsertThenCredential(t *testing.T) {
	store, mem, _ := newTestStore(t)
	ctx := context.Background()

	cred := &models.Credential{
		Cookies: []models.Cookie{{Name: "li_at", Value: "secret", Domain: ".linkedin.com"}},
		URL:     "https://www.linkedin.com/feed/",
	}
	session, err := store.Upsert(ctx, "u1", models.PlatformLinkedIn, cred, time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, session.EncryptedCredential, "secret")
	assert.Len(t, mem.sessions, 1)

	got, err := store.Credential(ctx, "u1", models.PlatformLinkedIn)
	require.NoError(t, err)
	require.Len(t, got.Cookies, 1)
	assert.Equal(t, "secret", got.Cookies[0].Value)
}

func TestUpsertOverwrites(t *testing.T) {
	store, mem, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "u1", models.PlatformNaukri, &models.Credential{URL: "first"}, time.Hour)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "u1", models.PlatformNaukri, &models.Credential{URL: "second"}, time.Hour)
	require.NoError(t, err)

	assert.Len(t, mem.sessions, 1)
	got, err := store.Credential(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	assert.Equal(t, "second", got.URL)
}

func TestExpiredSessionIsKeptButInvalid(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "u1", models.PlatformNaukri, &models.Credential{}, time.Hour)
	require.NoError(t, err)

	clock.T = clock.T.Add(2 * time.Hour)

	session, err := store.Get(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	require.NotNil(t, session, "expiry does not delete")
	assert.False(t, store.IsValid(session))

	_, err = store.Credential(ctx, "u1", models.PlatformNaukri)
	assert.ErrorIs(t, err, common.ErrSessionExpired)

	valid, err := store.ValidSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, valid)
}

func TestIsValidNil(t *testing.T) {
	store, _, _ := newTestStore(t)
	assert.False(t, store.IsValid(nil))
}

func TestMissingSessionIsExpired(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Credential(context.Background(), "nobody", models.PlatformLinkedIn)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestUpsertPropagatesStorageError(t *testing.T) {
	store, mem, _ := newTestStore(t)
	mem.failPut = common.ErrStorage

	_, err := store.Upsert(context.Background(), "u1", models.PlatformNaukri, &models.Credential{}, time.Hour)
	assert.True(t, errors.Is(err, common.ErrStorage))
}
