package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/handlers"
)

// claims carries the user id. Tokens issued by the account service put it
// in userId; standard issuers use sub.
type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens
type Authenticator struct {
	secret []byte
	logger arbor.ILogger
	parser *jwt.Parser
}

func NewAuthenticator(secret string, logger arbor.ILogger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		logger: logger,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// UserID validates raw and returns the user it was issued for
func (a *Authenticator) UserID(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	var c claims
	if _, err := a.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return "", err
	}
	if c.UserID != "" {
		return c.UserID, nil
	}
	if c.Subject != "" {
		return c.Subject, nil
	}
	return "", errors.New("token has no user id")
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on a websocket upgrade, so /ws also accepts ?token=.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" && r.URL.Path == "/ws" {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			handlers.WriteError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		userID, err := a.UserID(raw)
		if err != nil {
			a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
			handlers.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(handlers.WithUserID(r.Context(), userID)))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
