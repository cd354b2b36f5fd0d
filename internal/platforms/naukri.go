package platforms

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/models"
)

var (
	naukriJobIDParam = regexp.MustCompile(`(?i)jobid[=/-](\d+)`)
	naukriJobIDTail  = regexp.MustCompile(`/(\d+)(?:\?|$)`)
)

// Naukri is the naukri.com profile
var Naukri = &Profile{
	Platform:   models.PlatformNaukri,
	BaseURL:    "https://www.naukri.com",
	LoginURL:   "https://www.naukri.com/nlogin/login",
	CookieURLs: []string{"https://www.naukri.com", "https://login.naukri.com"},

	PostLoginURLPatterns: []string{"mnjuser", "homepage"},
	LoggedInSelectors: []string{
		".user-name",
		".nI-gNb-drawer__user-name",
		"[data-testid='user-name']",
		".nI-gNb-header__user-name",
	},
	LoggedInText: []string{"My Naukri"},
	IsSessionCookie: func(name string) bool {
		name = strings.ToLower(name)
		return strings.Contains(name, "session") || strings.Contains(name, "auth") || strings.Contains(name, "token")
	},

	LoginRequiredURLPatterns: []string{"login", "signin"},

	CardSelector: ".srp-jobtuple-wrapper",
	SearchURL:    naukriSearchURL,
	ParseCard:    parseNaukriCard,
	Eligible:     NaukriDirectApply,
}

func naukriSearchURL(q SearchQuery) string {
	roles := q.Roles
	if len(roles) == 0 && q.Keywords != "" {
		roles = []string{q.Keywords}
	}
	r := joinEscaped(roles)
	return fmt.Sprintf("https://www.naukri.com/%s-jobs?k=%s&l=%s", r, r, joinEscaped(q.Locations))
}

func parseNaukriCard(index int, card *goquery.Selection) *models.JobRecord {
	title := first(card, ".title", "a.title", `[class*="title"]`)
	if title.Length() == 0 {
		return nil
	}

	href, _ := title.Attr("href")
	jobID := firstMatch(href, naukriJobIDParam, naukriJobIDTail)
	if jobID == "" {
		jobID = fmt.Sprintf("job-%d", index)
	}

	return &models.JobRecord{
		PlatformJobID:   jobID,
		Title:           text(title),
		Company:         text(first(card, ".comp-name", `[class*="comp"]`, `[class*="company"]`)),
		Location:        text(first(card, ".loc", `[class*="loc"]`, `[class*="location"]`)),
		ExperienceRange: text(first(card, ".expwdth", `[class*="exp"]`, `[class*="experience"]`)),
		SalaryRange:     text(first(card, ".sal", `[class*="sal"]`, `[class*="salary"]`)),
		PostedDate:      text(first(card, ".date", `[class*="date"]`, `[class*="posted"]`)),
		ApplicationURL:  absolute("https://www.naukri.com", href),
	}
}

// naukriApplyControl finds the card's apply button by class, then by text
func naukriApplyControl(card *goquery.Selection) *goquery.Selection {
	if btn := first(card,
		`button[class*="apply"]`, `a[class*="apply"]`,
		`button[class*="Apply"]`, `a[class*="Apply"]`,
	); btn.Length() > 0 {
		return btn
	}
	return card.Find("button, a").FilterFunction(func(_ int, el *goquery.Selection) bool {
		t := strings.ToLower(el.Text())
		return strings.Contains(t, "apply") && !strings.Contains(t, "applied")
	}).First()
}

// NaukriDirectApply accepts cards whose apply control keeps the user on naukri.com
func NaukriDirectApply(card *goquery.Selection, _ *models.JobRecord) bool {
	btn := naukriApplyControl(card)
	if btn.Length() == 0 {
		return false
	}
	if target, _ := btn.Attr("target"); target == "_blank" {
		return false
	}
	if strings.Contains(strings.ToLower(card.Text()), "apply on company website") {
		return false
	}
	if goquery.NodeName(btn) == "a" {
		href, _ := btn.Attr("href")
		if isAbsolute(href) && !strings.Contains(href, "naukri.com") {
			return false
		}
	}
	return true
}

func isAbsolute(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") || strings.HasPrefix(href, "//")
}
