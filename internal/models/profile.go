package models

// Profile represents a connected social media destination known to the
// scheduling API. Fetched remotely and cached; read-only here.
type Profile struct {
	ID                string       `json:"id"`
	Service           string       `json:"service"`
	FormattedService  string       `json:"formatted_service"`
	Username          string       `json:"formatted_username"`
	Enabled           bool         `json:"enabled"`
	Timezone          string       `json:"timezone,omitempty"`
	SubProfiles       []SubProfile `json:"subprofiles,omitempty"`
}

// SubProfile is a destination within a profile, e.g. a Pinterest board
type SubProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label returns the human readable profile name used in log entries,
// e.g. "Twitter: @acme"
func (p Profile) Label() string {
	return p.FormattedService + ": " + p.Username
}

// HasSubProfile returns true if the given sub-profile ID belongs to this profile
func (p Profile) HasSubProfile(id string) bool {
	for _, sp := range p.SubProfiles {
		if sp.ID == id {
			return true
		}
	}
	return false
}

// Profiles is a profile directory keyed by profile ID
type Profiles map[string]Profile

// ProfileList converts a slice of profiles into a directory
func ProfileList(list []Profile) Profiles {
	profiles := make(Profiles, len(list))
	for _, p := range list {
		profiles[p.ID] = p
	}
	return profiles
}
