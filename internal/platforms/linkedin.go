package platforms

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/models"
)

var (
	linkedInViewID  = regexp.MustCompile(`/view/(\d+)`)
	linkedInParamID = regexp.MustCompile(`jobId=(\d+)`)
)

// LinkedIn is the linkedin.com profile. Searches carry the Easy Apply
// filter so every card is treated as eligible.
var LinkedIn = &Profile{
	Platform:   models.PlatformLinkedIn,
	BaseURL:    "https://www.linkedin.com",
	LoginURL:   "https://www.linkedin.com/login",
	CookieURLs: []string{"https://www.linkedin.com"},

	PostLoginURLPatterns: []string{"linkedin.com/feed", "/in/", "/mynetwork"},
	LoggedInSelectors: []string{
		"[data-control-name='nav.settings']",
		"[data-control-name='nav.messaging']",
		".global-nav__me",
		"[data-control-name='nav.profile']",
	},
	LoggedInText: []string{"Messaging"},
	IsSessionCookie: func(name string) bool {
		switch name {
		case "li_at", "JSESSIONID", "bcookie":
			return true
		}
		return false
	},

	LoginRequiredURLPatterns: []string{"login", "challenge"},

	CardSelector: ".jobs-search-results__list-item, .jobs-search__results-list li, .scaffold-layout__list-item",
	SearchURL:    linkedInSearchURL,
	ParseCard:    parseLinkedInCard,
	Eligible:     AlwaysEligible,
}

func linkedInSearchURL(q SearchQuery) string {
	keywords := q.Keywords
	if keywords == "" && len(q.Roles) > 0 {
		keywords = q.Roles[0]
	}
	v := url.Values{}
	v.Set("keywords", keywords)
	if len(q.Locations) > 0 {
		v.Set("location", q.Locations[0])
	}
	v.Set("f_AL", "true")
	return "https://www.linkedin.com/jobs/search/?" + v.Encode()
}

func parseLinkedInCard(index int, card *goquery.Selection) *models.JobRecord {
	title := first(card,
		".job-card-list__title",
		".base-search-card__title",
		"a[data-control-name='job_card_title']",
		"a.job-card-list__title-link",
		".job-card-list__title a",
		"a[href*='/jobs/view/']",
	)
	if title.Length() == 0 {
		return nil
	}

	href, ok := title.Attr("href")
	if !ok {
		href, _ = card.Find("a[href]").First().Attr("href")
	}
	jobID := firstMatch(href, linkedInViewID, linkedInParamID)
	if jobID == "" {
		jobID = fmt.Sprintf("linkedin-job-%d", index)
	}

	posted := ""
	if date := first(card,
		".job-card-container__metadata-wrapper time",
		"time[datetime]",
		".job-card-container__metadata-item time",
	); date.Length() > 0 {
		posted, ok = date.Attr("datetime")
		if !ok || posted == "" {
			posted = text(date)
		}
	}

	return &models.JobRecord{
		PlatformJobID: jobID,
		Title:         text(title),
		Company: text(first(card,
			".job-card-container__primary-description",
			".base-search-card__subtitle",
			"a[data-control-name='job_card_company_link']",
			".job-card-container__company-name",
		)),
		Location: text(first(card,
			".job-card-container__metadata-item",
			".job-search-card__location",
		)),
		PostedDate:     posted,
		ApplicationURL: absolute("https://www.linkedin.com", href),
	}
}

// AlwaysEligible accepts every card
func AlwaysEligible(*goquery.Selection, *models.JobRecord) bool { return true }
