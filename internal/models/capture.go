package models

import "time"

// CapturePhase is a state of the login capture state machine
type CapturePhase string

const (
	CapturePhaseMonitoring CapturePhase = "monitoring"
	CapturePhaseCapturing  CapturePhase = "capturing"
	CapturePhaseConnected  CapturePhase = "connected"
	CapturePhaseFailed     CapturePhase = "failed"
	CapturePhaseTimeout    CapturePhase = "timeout"
	CapturePhaseError      CapturePhase = "error"
)

// IsTerminal reports whether monitoring stops in this phase
func (p CapturePhase) IsTerminal() bool {
	switch p {
	case CapturePhaseConnected, CapturePhaseFailed, CapturePhaseTimeout, CapturePhaseError:
		return true
	}
	return false
}

// CaptureState is the in-memory view of a capture in flight.
// It is a cache and never the answer to "is the user connected".
type CaptureState struct {
	UserID       string       `json:"userId"`
	Platform     Platform     `json:"platform"`
	Phase        CapturePhase `json:"phase"`
	Message      string       `json:"message"`
	AttemptCount int          `json:"attemptCount"`
	MaxAttempts  int          `json:"maxAttempts"`
	StartedAt    time.Time    `json:"startedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ConnectionStatus is the answer to a status query
type ConnectionStatus struct {
	Connected     bool         `json:"connected"`
	Monitoring    bool         `json:"monitoring"`
	Phase         CapturePhase `json:"phase,omitempty"`
	CaptureStatus CapturePhase `json:"captureStatus,omitempty"`
	Message       string       `json:"message,omitempty"`
	Attempt       int          `json:"attempt,omitempty"`
	MaxAttempts   int          `json:"maxAttempts,omitempty"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
}
