package models

import "time"

// ApplicationStatus is the lifecycle state of an application attempt
type ApplicationStatus string

const (
	ApplicationQueued       ApplicationStatus = "queued"
	ApplicationInProgress   ApplicationStatus = "in_progress"
	ApplicationApplied      ApplicationStatus = "applied"
	ApplicationFailed       ApplicationStatus = "failed"
	ApplicationReviewNeeded ApplicationStatus = "review_needed"
)

// AllApplicationStatuses lists statuses in lifecycle order
func AllApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationQueued,
		ApplicationInProgress,
		ApplicationApplied,
		ApplicationFailed,
		ApplicationReviewNeeded,
	}
}

// ParseApplicationStatus validates a status string
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	for _, st := range AllApplicationStatuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends an attempt
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationApplied || s == ApplicationFailed || s == ApplicationReviewNeeded
}

func (s ApplicationStatus) rank() int {
	switch s {
	case ApplicationQueued:
		return 0
	case ApplicationInProgress:
		return 1
	default:
		return 2
	}
}

// CanTransition enforces forward-only movement. The single backward edge is a
// retry from failed or review_needed to in_progress. Applied is final.
func (s ApplicationStatus) CanTransition(to ApplicationStatus) bool {
	if s == "" {
		return true
	}
	if s == ApplicationApplied {
		return false
	}
	if s.IsTerminal() {
		return to == ApplicationInProgress || to == s
	}
	return to.rank() >= s.rank()
}

// ApplicationAttempt records the outcome of applying to one job
type ApplicationAttempt struct {
	ID           string            `json:"id" badgerhold:"key"` // "<userId>:<jobRef>"
	UserID       string            `json:"userId" badgerhold:"index"`
	JobRef       string            `json:"jobRef"`
	Platform     Platform          `json:"platform"`
	Status       ApplicationStatus `json:"status" badgerhold:"index"`
	Attempts     int               `json:"attempts"`
	AppliedAt    *time.Time        `json:"appliedAt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	CoverLetter  string            `json:"coverLetter,omitempty"`
	ResumeUsed   string            `json:"resumeUsed,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ApplicationID builds the storage key for an attempt
func ApplicationID(userID, jobRef string) string {
	return userID + ":" + jobRef
}

// ApplicationFilter narrows application listings
type ApplicationFilter struct {
	UserID   string
	Status   ApplicationStatus
	Platform Platform
}

// ApplicationStats counts attempts per status
type ApplicationStats struct {
	Queued       int `json:"queued"`
	InProgress   int `json:"in_progress"`
	Applied      int `json:"applied"`
	Failed       int `json:"failed"`
	ReviewNeeded int `json:"review_needed"`
	Total        int `json:"total"`
}

// Add counts one attempt in status s
func (st *ApplicationStats) Add(s ApplicationStatus) {
	switch s {
	case ApplicationQueued:
		st.Queued++
	case ApplicationInProgress:
		st.InProgress++
	case ApplicationApplied:
		st.Applied++
	case ApplicationFailed:
		st.Failed++
	case ApplicationReviewNeeded:
		st.ReviewNeeded++
	default:
		return
	}
	st.Total++
}
