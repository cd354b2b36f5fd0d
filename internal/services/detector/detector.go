// Package detector decides whether a browser page belongs to a logged-in user.
package detector

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/platforms"
	"github.com/ternarybob/jobpilot/internal/services/browser"
)

// Signal names the check that recognised a login
type Signal string

const (
	SignalNone   Signal = ""
	SignalURL    Signal = "url"
	SignalDOM    Signal = "dom"
	SignalText   Signal = "text"
	SignalCookie Signal = "cookie"
)

// Detector classifies pages using a platform's login markers. It never
// changes page state and never returns an error.
type Detector struct {
	profile *platforms.Profile
	logger  arbor.ILogger
}

// New creates a detector for profile
func New(profile *platforms.Profile, logger arbor.ILogger) *Detector {
	return &Detector{profile: profile, logger: logger}
}

// IsLoggedIn reports whether any login signal is present
func (d *Detector) IsLoggedIn(ctx context.Context, page browser.Page) bool {
	return d.Detect(ctx, page) != SignalNone
}

// Detect returns the first signal that matched, checking URL, then DOM
// markers, then session cookies.
func (d *Detector) Detect(ctx context.Context, page browser.Page) Signal {
	if u, err := page.URL(ctx); err == nil && d.profile.IsPostLoginURL(u) {
		return SignalURL
	} else if err != nil {
		d.logger.Trace().Err(err).Msg("URL check failed")
	}

	if sig := d.checkDOM(ctx, page); sig != SignalNone {
		return sig
	}

	cookies, err := page.Cookies(ctx, d.profile.CookieURLs...)
	if err != nil {
		d.logger.Trace().Err(err).Msg("Cookie check failed")
		return SignalNone
	}
	for _, c := range cookies {
		if c.Value != "" && d.profile.IsSessionCookie(c.Name) {
			return SignalCookie
		}
	}
	return SignalNone
}

func (d *Detector) checkDOM(ctx context.Context, page browser.Page) Signal {
	html, err := page.HTML(ctx)
	if err != nil {
		d.logger.Trace().Err(err).Msg("DOM check failed")
		return SignalNone
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SignalNone
	}

	for _, sel := range d.profile.LoggedInSelectors {
		if doc.Find(sel).Length() > 0 {
			return SignalDOM
		}
	}

	if len(d.profile.LoggedInText) == 0 {
		return SignalNone
	}
	text, err := page.BodyText(ctx)
	if err != nil {
		text = doc.Find("body").Text()
	}
	for _, marker := range d.profile.LoggedInText {
		if strings.Contains(text, marker) {
			return SignalText
		}
	}
	return SignalNone
}
