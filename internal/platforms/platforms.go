// Package platforms describes each supported job portal: where to log in,
// how to recognise an authenticated page, how to search it and how to read
// its result cards. Everything here is pure data and pure functions over
// goquery snapshots so it can be tested against HTML fixtures.
package platforms

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
)

// SearchQuery is the input to a platform search URL builder
type SearchQuery struct {
	Keywords  string
	Roles     []string
	Locations []string
}

// EligibilityPredicate decides whether a scraped card can be applied to
// without leaving the platform
type EligibilityPredicate func(card *goquery.Selection, job *models.JobRecord) bool

// Profile is the static description of one job portal
type Profile struct {
	Platform models.Platform
	BaseURL  string
	LoginURL string

	// CookieURLs scope cookie reads during capture
	CookieURLs []string

	// Post-login signals, checked in order by the detector
	PostLoginURLPatterns []string
	LoggedInSelectors    []string
	LoggedInText         []string
	IsSessionCookie      func(name string) bool

	// LoginRequiredURLPatterns mark a redirect back to login or a challenge
	LoginRequiredURLPatterns []string

	CardSelector string
	SearchURL    func(q SearchQuery) string

	// ParseCard reads one result card. It returns nil when the card has no title link.
	ParseCard func(index int, card *goquery.Selection) *models.JobRecord
	Eligible  EligibilityPredicate
}

var registry = map[models.Platform]*Profile{
	models.PlatformNaukri:   Naukri,
	models.PlatformLinkedIn: LinkedIn,
}

// Get returns the profile for platform
func Get(platform models.Platform) (*Profile, error) {
	p, ok := registry[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownPlatform, platform)
	}
	return p, nil
}

// Lookup parses a platform name and returns its profile
func Lookup(name string) (*Profile, error) {
	platform, ok := models.ParsePlatform(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownPlatform, name)
	}
	return Get(platform)
}

// RequiresLogin reports whether rawURL is a login or challenge page
func (p *Profile) RequiresLogin(rawURL string) bool {
	return containsAny(strings.ToLower(rawURL), p.LoginRequiredURLPatterns)
}

// IsPostLoginURL reports whether rawURL is only reachable after login
func (p *Profile) IsPostLoginURL(rawURL string) bool {
	return containsAny(rawURL, p.PostLoginURLPatterns)
}

// Extract reads every card on a results page in page order. Eligibility is
// recorded on each record; nothing is filtered here. A nil predicate uses the
// platform default.
func (p *Profile) Extract(doc *goquery.Document, eligible EligibilityPredicate) []*models.JobRecord {
	if eligible == nil {
		eligible = p.Eligible
	}

	var jobs []*models.JobRecord
	doc.Find(p.CardSelector).Each(func(i int, card *goquery.Selection) {
		job := p.ParseCard(i, card)
		if job == nil {
			return
		}
		job.Platform = p.Platform
		job.Position = len(jobs)
		job.DirectApplyEligible = eligible == nil || eligible(card, job)
		jobs = append(jobs, job)
	})
	return jobs
}

// AbsoluteURL resolves href against the platform base URL
func (p *Profile) AbsoluteURL(href string) string {
	return absolute(p.BaseURL, href)
}

func absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return base + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return base + href
	}
	return baseURL.ResolveReference(ref).String()
}

// first returns the first element matched by the earliest selector that matches anything
func first(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return s.Find("__none__")
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func firstMatch(s string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func joinEscaped(parts []string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			escaped = append(escaped, url.PathEscape(p))
		}
	}
	return strings.Join(escaped, "%20")
}
