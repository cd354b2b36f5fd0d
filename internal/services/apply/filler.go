// Package apply drives job application forms in a browser page and runs
// batches of applications over one reused session.
package apply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser"
)

const (
	msgConfirmed   = "Application submitted successfully"
	msgUnconfirmed = "Submit clicked but no confirmation was seen. Please verify on the site."
	msgReview      = "Form filled. Please review and submit manually."
)

// Applicant is the data typed into application forms
type Applicant struct {
	Name        string
	Email       string
	Phone       string
	Experience  string
	ExpectedCTC string
	ResumePath  string
	CoverLetter string
	// CoverLetterPDF is attached to a cover letter upload input when present
	CoverLetterPDF string
}

// ApplicantFromProfile copies the form fields of a profile
func ApplicantFromProfile(p *models.Profile) Applicant {
	return Applicant{
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		Experience:  p.Experience,
		ExpectedCTC: p.ExpectedCTC,
		ResumePath:  p.ResumePath,
		CoverLetter: p.CoverLetter,
	}
}

// FillOutcome describes how far a fill got. Submitted without Confirmed
// means a human should check the application.
type FillOutcome struct {
	Submitted    bool     `json:"submitted"`
	Confirmed    bool     `json:"confirmed"`
	Message      string   `json:"message"`
	FieldsFilled []string `json:"fieldsFilled"`
}

// Status maps the outcome to an application status
func (o FillOutcome) Status() models.ApplicationStatus {
	if o.Submitted && o.Confirmed {
		return models.ApplicationApplied
	}
	return models.ApplicationReviewNeeded
}

// FillTiming bounds the waits inside Fill
type FillTiming struct {
	InitialDelay   time.Duration
	StepDelay      time.Duration
	SuccessTimeout time.Duration
	SuccessPoll    time.Duration
}

// FillTimingFromConfig reads the apply config section
func FillTimingFromConfig(cfg common.ApplyConfig) FillTiming {
	return FillTiming{
		InitialDelay:   common.Duration(cfg.InitialDelay, 2*time.Second),
		StepDelay:      common.Duration(cfg.StepDelay, 2*time.Second),
		SuccessTimeout: common.Duration(cfg.SuccessTimeout, 5*time.Second),
		SuccessPoll:    500 * time.Millisecond,
	}
}

// Filler fills and submits one application form
type Filler struct {
	timing FillTiming
	resume ResumeChecker
	logger arbor.ILogger
}

// NewFiller creates a filler. A nil resume checker attaches files unchecked.
func NewFiller(timing FillTiming, resume ResumeChecker, logger arbor.ILogger) *Filler {
	if timing.SuccessPoll <= 0 {
		timing.SuccessPoll = 500 * time.Millisecond
	}
	return &Filler{timing: timing, resume: resume, logger: logger}
}

// Fill works through the application form on page, which is already at the
// job's page. Missing optional fields are skipped. It fails with
// common.ErrSessionExpired when the page shows a login form and with
// common.ErrFill when no apply control can be found or clicked.
func (f *Filler) Fill(ctx context.Context, page browser.Page, job *models.JobRecord, applicant Applicant) (FillOutcome, error) {
	var out FillOutcome

	if err := common.Sleep(ctx, f.timing.InitialDelay); err != nil {
		return out, err
	}

	doc, err := snapshot(ctx, page)
	if err != nil {
		return out, fmt.Errorf("%w: read job page: %v", common.ErrFill, err)
	}
	if _, ok := LoginMarker(doc); ok {
		return out, fmt.Errorf("%w: login form shown on job page", common.ErrSessionExpired)
	}

	apply, ok := ApplyControl(doc)
	if !ok {
		return out, fmt.Errorf("%w: apply control not found", common.ErrFill)
	}
	if err := page.Click(ctx, apply); err != nil {
		return out, fmt.Errorf("%w: click apply: %v", common.ErrFill, err)
	}
	f.logger.Debug().Str("job_id", job.ID).Str("selector", apply.Selector).Int("index", apply.Index).Msg("Apply clicked")

	if err := common.Sleep(ctx, f.timing.StepDelay); err != nil {
		return out, err
	}

	doc, err = snapshot(ctx, page)
	if err != nil {
		// The click went through; leave the form to a human
		out.Message = msgReview
		return out, nil
	}

	for _, field := range Fields {
		value := strings.TrimSpace(field.Value(applicant))
		if value == "" {
			continue
		}
		ref, ok := field.Locate(doc)
		if !ok {
			continue
		}
		if err := page.SetValue(ctx, ref, value); err != nil {
			f.logger.Debug().Err(err).Str("field", field.Name).Msg("Field not filled")
			continue
		}
		out.FieldsFilled = append(out.FieldsFilled, field.Name)
	}

	if f.attach(ctx, page, doc, ResumeInput, applicant.ResumePath, "resume") {
		out.FieldsFilled = append(out.FieldsFilled, "resume")
	}
	if f.attach(ctx, page, doc, CoverLetterInput, applicant.CoverLetterPDF, "cover_letter_file") {
		out.FieldsFilled = append(out.FieldsFilled, "cover_letter_file")
	}

	submit, ok := SubmitControl(doc)
	if !ok {
		out.Message = msgReview
		return out, nil
	}
	if ready, err := page.Interactable(ctx, submit); err != nil || !ready {
		out.Message = msgReview
		return out, nil
	}
	if err := page.Click(ctx, submit); err != nil {
		f.logger.Debug().Err(err).Msg("Submit click failed")
		out.Message = msgReview
		return out, nil
	}
	out.Submitted = true

	out.Confirmed = f.waitSuccess(ctx, page)
	if out.Confirmed {
		out.Message = msgConfirmed
	} else {
		out.Message = msgUnconfirmed
	}
	return out, nil
}

func (f *Filler) attach(ctx context.Context, page browser.Page, doc *goquery.Document, locate Strategy, path, name string) bool {
	if path == "" {
		return false
	}
	ref, ok := locate(doc)
	if !ok {
		return false
	}
	if f.resume != nil {
		if err := f.resume.Check(path); err != nil {
			f.logger.Warn().Err(err).Str("file", path).Msg("Upload skipped")
			return false
		}
	}
	if err := page.SetFiles(ctx, ref, []string{path}); err != nil {
		f.logger.Debug().Err(err).Str("input", name).Msg("File not attached")
		return false
	}
	return true
}

// waitSuccess polls for a success marker until SuccessTimeout
func (f *Filler) waitSuccess(ctx context.Context, page browser.Page) bool {
	deadline := time.Now().Add(f.timing.SuccessTimeout)
	for {
		if doc, err := snapshot(ctx, page); err == nil {
			if _, ok := SuccessMarker(doc); ok {
				return true
			}
		}
		if !time.Now().Before(deadline) {
			return false
		}
		if err := common.Sleep(ctx, f.timing.SuccessPoll); err != nil {
			return false
		}
	}
}

func snapshot(ctx context.Context, page browser.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
