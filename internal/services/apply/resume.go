package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ResumeChecker vets a file before it is uploaded
type ResumeChecker interface {
	Check(path string) error
}

// PDFChecker requires PDF uploads to parse and contain at least one page.
// Other document types only need to exist and be non-empty.
type PDFChecker struct {
	MaxBytes int64
}

// Check validates the file at path
func (c PDFChecker) Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("resume not readable: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("resume %s is empty", path)
	}
	if c.MaxBytes > 0 && info.Size() > c.MaxBytes {
		return fmt.Errorf("resume %s is %d bytes, limit is %d", path, info.Size(), c.MaxBytes)
	}

	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil
	}
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return fmt.Errorf("resume %s is not a valid PDF: %w", path, err)
	}
	if ctx.PageCount < 1 {
		return fmt.Errorf("resume %s has no pages", path)
	}
	return nil
}
