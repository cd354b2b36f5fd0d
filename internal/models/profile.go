package models

// Profile is the applicant data used for searches and form filling.
// Profiles are managed outside this service and loaded read-only.
type Profile struct {
	UserID             string   `json:"userId" toml:"user_id" yaml:"user_id" validate:"required"`
	Name               string   `json:"name" toml:"name" yaml:"name" validate:"required"`
	Email              string   `json:"email" toml:"email" yaml:"email" validate:"omitempty,email"`
	Phone              string   `json:"phone" toml:"phone" yaml:"phone"`
	Experience         string   `json:"experience" toml:"experience" yaml:"experience"` // Years, free text
	Skills             []string `json:"skills" toml:"skills" yaml:"skills"`
	PreferredRoles     []string `json:"preferredRoles" toml:"preferred_roles" yaml:"preferred_roles"`
	PreferredLocations []string `json:"preferredLocations" toml:"preferred_locations" yaml:"preferred_locations"`
	ExpectedCTC        string   `json:"expectedCtc" toml:"expected_ctc" yaml:"expected_ctc"`
	ResumePath         string   `json:"resumePath" toml:"resume_path" yaml:"resume_path"`
	CoverLetter        string   `json:"coverLetter" toml:"cover_letter" yaml:"cover_letter"`
}
