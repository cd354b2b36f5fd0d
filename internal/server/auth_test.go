package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/handlers"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, c jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims(extra jwt.MapClaims) jwt.MapClaims {
	c := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

// echoUser writes the user id the middleware attached
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id := handlers.UserIDFromContext(r.Context())
	w.Write([]byte(id))
})

func TestUserIDFromClaims(t *testing.T) {
	a := NewAuthenticator(testSecret, arbor.NewLogger())

	id, err := a.UserID(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(jwt.MapClaims{"userId": "u1", "sub": "ignored"})))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	id, err = a.UserID(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(jwt.MapClaims{"sub": "u2"})))
	require.NoError(t, err)
	assert.Equal(t, "u2", id)
}

func TestUserIDRejectsBadTokens(t *testing.T) {
	a := NewAuthenticator(testSecret, arbor.NewLogger())

	tests := []struct {
		name string
		raw  string
	}{
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims(jwt.MapClaims{"userId": "u1"}))},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "u1", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "u1"})},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims(jwt.MapClaims{"userId": "u1"}))},
		{"no user", sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(nil))},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.UserID(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestUserIDWithoutSecret(t *testing.T) {
	a := NewAuthenticator("", arbor.NewLogger())
	_, err := a.UserID(sign(t, jwt.SigningMethodHS256, []byte("x"), validClaims(jwt.MapClaims{"userId": "u1"})))
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator(testSecret, arbor.NewLogger())
	h := a.Middleware(echoUser)
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(jwt.MapClaims{"userId": "u1"}))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("query token on websocket", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})

	t.Run("query token elsewhere", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?token="+token, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
