package models

import (
	"net/http"
	"time"
)

// Session is the persisted, encrypted credential for one (user, platform).
// It is only written by a successful capture.
type Session struct {
	ID                  string    `json:"id" badgerhold:"key"` // "<userId>:<platform>"
	UserID              string    `json:"user_id" badgerhold:"index"`
	Platform            Platform  `json:"platform"`
	EncryptedCredential string    `json:"encrypted_credential"` // ivHex ":" cipherHex
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SessionID builds the storage key for a session
func SessionID(userID string, platform Platform) string {
	return userID + ":" + string(platform)
}

// Credential is the plaintext browser state carried inside a Session
type Credential struct {
	Cookies    []Cookie  `json:"cookies"`
	URL        string    `json:"url"` // Page URL at capture time
	CapturedAt time.Time `json:"captured_at"`
}

// Cookie is a browser cookie in a transport-neutral form
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"` // Unix seconds; <= 0 is a session cookie
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite"`
}

// ToHTTPCookie converts to a standard HTTP cookie
func (c *Cookie) ToHTTPCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}

	if c.Expires > 0 {
		cookie.Expires = time.Unix(c.Expires, 0)
	}

	switch c.SameSite {
	case "Strict", "strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "Lax", "lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "None", "none":
		cookie.SameSite = http.SameSiteNoneMode
	default:
		cookie.SameSite = http.SameSiteDefaultMode
	}

	return cookie
}
