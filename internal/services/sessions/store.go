// Package sessions persists one encrypted browser credential per (user, platform).
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// Store wraps SessionStorage with encryption and expiry checks
type Store struct {
	storage interfaces.SessionStorage
	cipher  interfaces.Cipher
	clock   common.Clock
	logger  arbor.ILogger
}

// NewStore creates a session store. A nil clock uses the wall clock.
func NewStore(storage interfaces.SessionStorage, cipher interfaces.Cipher, clock common.Clock, logger arbor.ILogger) *Store {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Store{
		storage: storage,
		cipher:  cipher,
		clock:   clock,
		logger:  logger,
	}
}

// Get returns the stored session or nil when none exists. Expired sessions are returned as-is.
func (s *Store) Get(ctx context.Context, userID string, platform models.Platform) (*models.Session, error) {
	return s.storage.GetSession(ctx, userID, platform)
}

// Upsert encrypts cred and overwrites the session for (userID, platform).
// The write is read back and decrypted before it is reported as stored.
func (s *Store) Upsert(ctx context.Context, userID string, platform models.Platform, cred *models.Credential, ttl time.Duration) (*models.Session, error) {
	blob, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(blob)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:              userID,
		Platform:            platform,
		EncryptedCredential: encrypted,
		ExpiresAt:           s.clock.Now().Add(ttl),
	}
	if err := s.storage.UpsertSession(ctx, session); err != nil {
		return nil, err
	}

	stored, err := s.storage.GetSession(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.EncryptedCredential != encrypted {
		return nil, fmt.Errorf("%w: session for %s/%s did not read back", common.ErrStorage, userID, platform)
	}
	if _, err := s.decode(stored); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Int("cookies", len(cred.Cookies)).
		Str("expires_at", stored.ExpiresAt.Format(time.RFC3339)).
		Msg("Session stored")

	return stored, nil
}

// IsValid reports whether session exists and has not expired
func (s *Store) IsValid(session *models.Session) bool {
	return session != nil && session.ExpiresAt.After(s.clock.Now())
}

// Credential loads and decrypts a valid session.
// Missing or expired sessions return common.ErrSessionExpired.
func (s *Store) Credential(ctx context.Context, userID string, platform models.Platform) (*models.Credential, error) {
	session, err := s.Get(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if !s.IsValid(session) {
		return nil, fmt.Errorf("%w: %s is not connected to %s", common.ErrSessionExpired, userID, platform)
	}
	return s.decode(session)
}

// Delete removes the stored session. Missing sessions are not an error.
func (s *Store) Delete(ctx context.Context, userID string, platform models.Platform) error {
	return s.storage.DeleteSession(ctx, userID, platform)
}

// ValidSessions lists every unexpired session
func (s *Store) ValidSessions(ctx context.Context) ([]*models.Session, error) {
	all, err := s.storage.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	valid := make([]*models.Session, 0, len(all))
	for _, session := range all {
		if s.IsValid(session) {
			valid = append(valid, session)
		}
	}
	return valid, nil
}

func (s *Store) decode(session *models.Session) (*models.Credential, error) {
	blob, err := s.cipher.Decrypt(session.EncryptedCredential)
	if err != nil {
		return nil, err
	}
	var cred models.Credential
	if err := json.Unmarshal(blob, &cred); err != nil {
		return nil, fmt.Errorf("%w: credential payload is not valid json: %v", common.ErrCrypto, err)
	}
	return &cred, nil
}
