package interfaces

import (
	"context"

	"github.com/ternarybob/jobpilot/internal/models"
)

// Cipher encrypts credential blobs at rest
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// ProfileProvider supplies applicant profiles managed outside this service
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
}

// CoverLetterRequest describes the job a letter is written for
type CoverLetterRequest struct {
	Profile         *models.Profile
	Job             *models.JobRecord
	DescriptionHTML string // Raw job description markup, may be empty
}

// CoverLetter is a generated letter, optionally rendered to PDF
type CoverLetter struct {
	Text    string
	PDFPath string
}

// CoverLetterWriter drafts cover letters for applications
type CoverLetterWriter interface {
	Write(ctx context.Context, req CoverLetterRequest) (*CoverLetter, error)
}
