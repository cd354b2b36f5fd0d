// Package coverletter drafts cover letters for job applications with an LLM
// and optionally renders them to PDF for upload.
package coverletter

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/services/llm"
	"github.com/ternarybob/jobpilot/internal/services/pdf"
)

const systemInstruction = `You write concise, specific cover letters for job applications.
Write in the first person as the applicant. Plain paragraphs only, no headings,
no placeholders in brackets, no sign-off beyond the applicant's name.
Keep it under 250 words.`

// Renderer turns a letter into a PDF file
type Renderer interface {
	WriteFile(path, markdown, title string) error
}

// Writer implements interfaces.CoverLetterWriter
type Writer struct {
	provider  llm.Provider
	renderer  Renderer
	outputDir string
	maxTokens int
	logger    arbor.ILogger
}

var _ interfaces.CoverLetterWriter = (*Writer)(nil)

// NewWriter creates a writer. A nil renderer disables PDF output.
func NewWriter(provider llm.Provider, renderer Renderer, cfg common.CoverLetterConfig, logger arbor.ILogger) *Writer {
	return &Writer{
		provider:  provider,
		renderer:  renderer,
		outputDir: cfg.OutputDir,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// NewFromConfig builds the configured writer, or returns nil when cover
// letters are disabled
func NewFromConfig(ctx context.Context, cfg common.CoverLetterConfig, logger arbor.ILogger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	provider, err := llm.NewProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var renderer Renderer
	if cfg.RenderPDF {
		renderer = pdf.NewService(logger)
	}
	return NewWriter(provider, renderer, cfg, logger), nil
}

// Write drafts a letter for req. The PDF is best effort; a render failure
// still returns the text.
func (w *Writer) Write(ctx context.Context, req interfaces.CoverLetterRequest) (*interfaces.CoverLetter, error) {
	if req.Profile == nil || req.Job == nil {
		return nil, fmt.Errorf("cover letter needs a profile and a job")
	}

	prompt := BuildPrompt(req)
	resp, err := w.provider.GenerateContent(ctx, &llm.ContentRequest{
		Prompt:            prompt,
		SystemInstruction: systemInstruction,
		MaxTokens:         w.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate cover letter: %w", err)
	}

	letter := &interfaces.CoverLetter{Text: cleanLetter(resp.Text)}
	if letter.Text == "" {
		return nil, fmt.Errorf("generate cover letter: empty letter")
	}

	w.logger.Debug().
		Str("job_id", req.Job.ID).
		Str("provider", string(resp.Provider)).
		Int("length", len(letter.Text)).
		Msg("Cover letter generated")

	if w.renderer != nil && w.outputDir != "" {
		path := filepath.Join(w.outputDir, fileName(req.Profile.UserID, req.Job.ID))
		if err := w.renderer.WriteFile(path, letter.Text, "Cover letter - "+req.Job.Title); err != nil {
			w.logger.Warn().Err(err).Str("job_id", req.Job.ID).Msg("Cover letter PDF not rendered")
		} else {
			letter.PDFPath = path
		}
	}
	return letter, nil
}

// BuildPrompt assembles the user prompt for a letter
func BuildPrompt(req interfaces.CoverLetterRequest) string {
	p, job := req.Profile, req.Job
	var b strings.Builder

	fmt.Fprintf(&b, "Write a cover letter for the role %q", job.Title)
	if job.Company != "" {
		fmt.Fprintf(&b, " at %s", job.Company)
	}
	if job.Location != "" {
		fmt.Fprintf(&b, " (%s)", job.Location)
	}
	b.WriteString(".\n\nApplicant:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	if p.Experience != "" {
		fmt.Fprintf(&b, "- Experience: %s years\n", p.Experience)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(p.Skills, ", "))
	}
	if len(p.PreferredRoles) > 0 {
		fmt.Fprintf(&b, "- Target roles: %s\n", strings.Join(p.PreferredRoles, ", "))
	}
	if job.ExperienceRange != "" {
		fmt.Fprintf(&b, "\nThe role asks for %s of experience.\n", job.ExperienceRange)
	}

	base := ""
	if u, err := url.Parse(job.ApplicationURL); err == nil && u.Host != "" {
		base = u.Scheme + "://" + u.Host
	}
	if desc := Describe(req.DescriptionHTML, base); desc != "" {
		b.WriteString("\nJob description:\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return b.String()
}

var fence = regexp.MustCompile("(?s)^```[a-z]*\n(.*)\n```$")

// cleanLetter trims whitespace and a surrounding code fence
func cleanLetter(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileName(userID, jobID string) string {
	return unsafeName.ReplaceAllString(userID+"-"+jobID, "_") + ".pdf"
}

// Close releases the LLM client
func (w *Writer) Close() error {
	return w.provider.Close()
}
