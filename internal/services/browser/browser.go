// Package browser owns the browser processes used for capture, scraping and
// applying. Every process belongs to exactly one (user, platform) key and is
// handed out as a Lease that must be released on every exit path.
package browser

import (
	"context"
	"time"

	"github.com/ternarybob/jobpilot/internal/models"
)

// Key identifies the single owner of a browser process
type Key struct {
	UserID   string
	Platform models.Platform
}

func (k Key) String() string {
	return k.UserID + ":" + string(k.Platform)
}

// ElementRef addresses the Index-th match of Selector in document order
type ElementRef struct {
	Selector string
	Index    int
}

// Page is one browser tab
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)

	// WaitVisible waits up to timeout for selector. A timeout is (false, nil).
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	ScrollHeight(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
	ScrollToTop(ctx context.Context) error

	// Cookies returns cookies visible to urls, or to the current page when none are given
	Cookies(ctx context.Context, urls ...string) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	Click(ctx context.Context, el ElementRef) error
	SetValue(ctx context.Context, el ElementRef, value string) error
	SetFiles(ctx context.Context, el ElementRef, paths []string) error

	// Interactable reports whether el is visible and not disabled
	Interactable(ctx context.Context, el ElementRef) (bool, error)

	// OnNavigate registers fn for main-frame navigations. fn runs on the
	// browser event loop and must not block or call back into the page.
	OnNavigate(fn func(url string)) (cancel func())

	Alive() bool
	Close() error
}

// Browser is a launched browser process with its first tab
type Browser interface {
	Page() Page

	// NewPage opens a tab sharing the process cookie jar
	NewPage(ctx context.Context) (Page, error)

	Alive() bool
	Close() error
}

// Launcher starts browser processes
type Launcher interface {
	Launch(ctx context.Context, key Key) (Browser, error)
}
