package models

import "time"

// JobRecord is a scraped listing owned by one user
type JobRecord struct {
	ID                  string     `json:"id" badgerhold:"key"` // "<userId>:<platform>:<platformJobId>"
	PlatformJobID       string     `json:"platformJobId"`
	Platform            Platform   `json:"platform" badgerhold:"index"`
	OwnerUserID         string     `json:"ownerUserId" badgerhold:"index"`
	Title               string     `json:"title"`
	Company             string     `json:"company"`
	Location            string     `json:"location"`
	ExperienceRange     string     `json:"experienceRange"`
	SalaryRange         string     `json:"salaryRange"`
	PostedDate          string     `json:"postedDate"`
	ApplicationURL      string     `json:"applicationUrl"`
	DirectApplyEligible bool       `json:"directApplyEligible"`
	Applied             bool       `json:"applied"`
	AppliedAt           *time.Time `json:"appliedAt,omitempty"`
	Position            int        `json:"position"` // Order on the results page
	ScrapedAt           time.Time  `json:"scrapedAt"`
}

// JobID builds the storage key for a job record
func JobID(userID string, platform Platform, platformJobID string) string {
	return userID + ":" + string(platform) + ":" + platformJobID
}

// JobFilter narrows job listings. Nil fields are ignored.
type JobFilter struct {
	OwnerUserID string
	Platform    Platform
	Applied     *bool
}

// JobFilters lists the distinct facets of a user's jobs
type JobFilters struct {
	Locations []string `json:"locations"`
	Companies []string `json:"companies"`
	Platforms []string `json:"platforms"`
}
