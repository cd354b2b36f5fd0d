package models

import "strings"

// Platform identifies a job portal
type Platform string

const (
	PlatformNaukri   Platform = "naukri"
	PlatformLinkedIn Platform = "linkedin"
)

// AllPlatforms lists every supported platform in a stable order
func AllPlatforms() []Platform {
	return []Platform{PlatformNaukri, PlatformLinkedIn}
}

// ParsePlatform accepts a case-insensitive platform name
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string {
	return string(p)
}
