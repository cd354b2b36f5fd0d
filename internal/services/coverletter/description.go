package coverletter

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// descriptionSelectors locate the job description on known job pages, most
// specific first
var descriptionSelectors = []string{
	`section[class*="job-desc"]`,
	`div[class*="job-desc"]`,
	".jobs-description__content",
	".jobs-description",
	"#job-details",
	`[class*="description"]`,
	"main",
	"body",
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// maxDescription bounds the description passed to the prompt
const maxDescription = 6000

// Describe converts a job page to a markdown description. Scripts, styles
// and forms are dropped. Returns "" when nothing readable remains.
func Describe(pageHTML, baseURL string) string {
	if strings.TrimSpace(pageHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, form, nav, header, footer, svg").Remove()

	var section *goquery.Selection
	for _, sel := range descriptionSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			section = s
			break
		}
	}
	if section == nil {
		return ""
	}

	html, err := goquery.OuterHtml(section)
	if err != nil {
		return ""
	}
	converted, err := md.NewConverter(baseURL, true, nil).ConvertString(html)
	if err != nil {
		converted = section.Text()
	}

	converted = strings.TrimSpace(blankLines.ReplaceAllString(converted, "\n\n"))
	if len(converted) > maxDescription {
		converted = converted[:maxDescription]
	}
	return converted
}
