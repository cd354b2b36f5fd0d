// Package pdf renders markdown cover letters to PDF documents.
package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	fontFamily = "Arial"
	bodySize   = 11.0
	lineHeight = 6.0
	margin     = 20.0
)

// Service converts markdown to PDF
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new PDF service
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// ConvertMarkdownToPDF renders markdown onto A4 pages. Title is stored in
// the document metadata only.
func (s *Service) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	s.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Converting markdown to PDF")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", bodySize)

	md := goldmark.New(goldmark.WithExtensions(extension.Linkify))
	source := []byte(stripFrontmatter(markdown))
	doc := md.Parser().Parse(text.NewReader(source))

	r := &renderer{pdf: pdf, source: source, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF generated")
	return buf.Bytes(), nil
}

// WriteFile renders markdown and writes it to path, creating parent dirs
func (s *Service) WriteFile(path, markdown, title string) error {
	data, err := s.ConvertMarkdownToPDF(markdown, title)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

type renderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	depth  int
}

func (r *renderer) font() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(fontFamily, style, bodySize)
}

func (r *renderer) write(s string) {
	r.pdf.Write(lineHeight, r.tr(s))
}

func (r *renderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			size := bodySize + 4 - float64(node.Level)
			if size < bodySize {
				size = bodySize
			}
			r.pdf.SetFont(fontFamily, "B", size)
		} else {
			r.pdf.Ln(lineHeight + 2)
			r.font()
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(lineHeight)
			if r.depth == 0 {
				r.pdf.Ln(lineHeight / 2)
			}
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.HardLineBreak() {
				r.pdf.Ln(lineHeight)
			} else if node.SoftLineBreak() {
				r.write(" ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.font()
	case *ast.AutoLink:
		if entering {
			r.write(string(node.URL(r.source)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			if r.depth == 0 {
				r.pdf.Ln(lineHeight / 2)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.SetX(margin + float64(r.depth)*5)
			r.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.Line(margin, y, 210-margin, y)
			r.pdf.Ln(lineHeight)
		}
	}
	return ast.WalkContinue, nil
}

// stripFrontmatter removes a leading YAML frontmatter block
func stripFrontmatter(markdown string) string {
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown
	}
	endIdx := strings.Index(markdown[4:], "\n---\n")
	if endIdx == -1 {
		return markdown
	}
	return strings.TrimSpace(markdown[4+endIdx+5:])
}
