package apply

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/services/browser"
)

// Strategy locates one element in a page snapshot. The returned reference
// indexes into the document's matches for its selector, so it resolves to the
// same node in the live page.
type Strategy func(doc *goquery.Document) (browser.ElementRef, bool)

// FirstOf evaluates strategies in order and returns the first match
func FirstOf(strategies ...Strategy) Strategy {
	return func(doc *goquery.Document) (browser.ElementRef, bool) {
		for _, s := range strategies {
			if ref, ok := s(doc); ok {
				return ref, true
			}
		}
		return browser.ElementRef{}, false
	}
}

// BySelector matches the first selector present in the document
func BySelector(selectors ...string) Strategy {
	return func(doc *goquery.Document) (browser.ElementRef, bool) {
		for _, sel := range selectors {
			if doc.Find(sel).Length() > 0 {
				return browser.ElementRef{Selector: sel}, true
			}
		}
		return browser.ElementRef{}, false
	}
}

// where matches the first element of selector accepted by keep
func where(selector string, keep func(el *goquery.Selection) bool) Strategy {
	return func(doc *goquery.Document) (browser.ElementRef, bool) {
		idx := -1
		doc.Find(selector).EachWithBreak(func(i int, el *goquery.Selection) bool {
			if keep(el) {
				idx = i
				return false
			}
			return true
		})
		if idx < 0 {
			return browser.ElementRef{}, false
		}
		return browser.ElementRef{Selector: selector, Index: idx}, true
	}
}

func normText(el *goquery.Selection) string {
	return strings.ToLower(strings.Join(strings.Fields(el.Text()), " "))
}

// ByExactText matches elements whose trimmed text equals one of texts, ignoring case
func ByExactText(selector string, texts ...string) Strategy {
	return where(selector, func(el *goquery.Selection) bool {
		t := normText(el)
		for _, want := range texts {
			if t == strings.ToLower(want) {
				return true
			}
		}
		return false
	})
}

// ByText matches elements whose text contains text and none of exclude, ignoring case
func ByText(selector, text string, exclude ...string) Strategy {
	text = strings.ToLower(text)
	return where(selector, func(el *goquery.Selection) bool {
		t := normText(el)
		if !strings.Contains(t, text) {
			return false
		}
		for _, ex := range exclude {
			if strings.Contains(t, strings.ToLower(ex)) {
				return false
			}
		}
		return true
	})
}

// ByAttrContains matches elements where any of attrs contains one of subs, ignoring case
func ByAttrContains(selector string, attrs []string, subs ...string) Strategy {
	return where(selector, func(el *goquery.Selection) bool {
		return attrContains(el, attrs, subs)
	})
}

func attrContains(el *goquery.Selection, attrs, subs []string) bool {
	for _, a := range attrs {
		v, ok := el.Attr(a)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		for _, s := range subs {
			if strings.Contains(v, strings.ToLower(s)) {
				return true
			}
		}
	}
	return false
}

var fieldAttrs = []string{"name", "id", "placeholder", "aria-label"}

// LoginMarker finds a login form left on a page that should be authenticated
var LoginMarker = BySelector(`input[type="password"]`, `input[type="email"]`, `input[name="email"]`, "#username")

// ApplyControl finds the primary apply entry point: exact button text first,
// then known apply classes and looser text, then any apply-ish class.
var ApplyControl = FirstOf(
	ByExactText("button", "Apply", "Easy Apply", "Apply now"),
	BySelector(".applyBtn", `[data-testid="apply-button"]`, ".apply-button", ".jobs-apply-button", "#apply-button"),
	ByText("button", "apply", "applied", "company website", "company site"),
	ByText("a", "apply", "applied", "company website", "company site"),
	BySelector(`button[class*="apply"]`, `a[class*="apply"]`),
)

// SubmitControl finds the control that sends a filled form
var SubmitControl = FirstOf(
	BySelector(`button[type="submit"]`, `input[type="submit"]`, ".submitBtn", `[data-testid="submit-button"]`),
	ByText("button", "submit"),
	ByText("button", "send application"),
)

// SuccessMarker finds a confirmation that the application went through
var SuccessMarker = FirstOf(
	BySelector(".success-message", ".success", ".apply-message.success", `[class*="success"]`, `[class*="applied"]`),
	ByText("body *", "successfully applied"),
	ByText("body *", "application submitted"),
	ByText("body *", "application sent"),
)

// Field is an optional form input filled from applicant data
type Field struct {
	Name   string
	Locate Strategy
	Value  func(a Applicant) string
}

// Fields lists the text inputs the filler populates, in fill order
var Fields = []Field{
	{
		Name: "name",
		Locate: FirstOf(
			BySelector(`input[name="name"]`, "input#name", `input[name="fullName"]`),
			ByAttrContains("input", []string{"placeholder", "aria-label"}, "full name", "name"),
		),
		Value: func(a Applicant) string { return a.Name },
	},
	{
		Name: "email",
		Locate: FirstOf(
			BySelector(`input[name="email"]`, "input#email", `input[type="email"]:not([name="username"])`),
			ByAttrContains("input", []string{"placeholder", "aria-label"}, "email"),
		),
		Value: func(a Applicant) string { return a.Email },
	},
	{
		Name: "phone",
		Locate: FirstOf(
			BySelector(`input[name="mobile"]`, `input[name="phone"]`, `input[type="tel"]`, "input#mobile"),
			ByAttrContains("input", []string{"placeholder", "aria-label"}, "phone", "mobile"),
		),
		Value: func(a Applicant) string { return a.Phone },
	},
	{
		Name: "experience",
		Locate: FirstOf(
			BySelector(`input[name="experience"]`, `input[name="exp"]`, `select[name="experience"]`, `select[name="exp"]`),
			ByAttrContains("input", []string{"placeholder", "aria-label"}, "experience"),
		),
		Value: func(a Applicant) string { return a.Experience },
	},
	{
		Name: "expected_ctc",
		Locate: FirstOf(
			BySelector(`input[name="ctc"]`, `input[name="expectedCTC"]`, `input[name="salary"]`),
			ByAttrContains("input", []string{"placeholder", "aria-label"}, "ctc", "salary"),
		),
		Value: func(a Applicant) string { return a.ExpectedCTC },
	},
	{
		Name: "cover_letter",
		Locate: FirstOf(
			BySelector(`textarea[name="coverLetter"]`, "textarea#coverLetter"),
			ByAttrContains("textarea", fieldAttrs, "cover", "message"),
		),
		Value: func(a Applicant) string { return a.CoverLetter },
	},
}

func isCoverInput(el *goquery.Selection) bool {
	return attrContains(el, []string{"name", "id", "aria-label"}, []string{"cover"})
}

// ResumeInput finds a file input for the résumé, skipping cover letter uploads
var ResumeInput = FirstOf(
	where(`input[type="file"]`, func(el *goquery.Selection) bool {
		return !isCoverInput(el) && attrContains(el, []string{"name", "id", "aria-label"}, []string{"resume", "cv"})
	}),
	where(`input[type="file"]`, func(el *goquery.Selection) bool { return !isCoverInput(el) }),
)

// CoverLetterInput finds a file input meant for a cover letter
var CoverLetterInput = where(`input[type="file"]`, isCoverInput)
