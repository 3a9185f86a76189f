package models

// DefaultProfileID is the reserved settings key holding fallback configuration
// used by profiles without their own override
const DefaultProfileID = "default"

// Settings holds the status configuration for one content type, keyed by
// profile ID with a reserved "default" entry
type Settings map[string]ProfileSettings

// ProfileSettings holds per-profile configuration
type ProfileSettings struct {
	Enabled  bool                      `json:"enabled"`
	Override bool                      `json:"override"` // Use this profile's action settings instead of the defaults
	Actions  map[Action]ActionSettings `json:"actions"`
}

// ActionSettings holds the ordered status templates for one lifecycle action
type ActionSettings struct {
	Enabled  bool             `json:"enabled"`
	Statuses []StatusTemplate `json:"status"`
}

// ActionSettingsFor resolves the action settings for a profile, falling back to
// the default profile unless the profile overrides its settings. Pinterest
// always uses its own settings, because board selection is per-profile.
func (s Settings) ActionSettingsFor(profileID, service string, action Action) ActionSettings {
	profile, ok := s[profileID]
	if ok && (profile.Override || service == "pinterest") {
		return profile.Actions[action]
	}
	return s[DefaultProfileID].Actions[action]
}

// ProfileEnabled returns true if the profile is enabled in these settings
func (s Settings) ProfileEnabled(profileID string) bool {
	return s[profileID].Enabled
}

// HasDuplicateStatuses reports whether any enabled (profile, action) group
// defines the same status message twice, which usually indicates a
// misconfiguration worth warning about
func (s Settings) HasDuplicateStatuses() bool {
	for _, profile := range s {
		for _, actionSettings := range profile.Actions {
			if !actionSettings.Enabled {
				continue
			}

			seen := make(map[string]bool, len(actionSettings.Statuses))
			for _, status := range actionSettings.Statuses {
				if seen[status.Message] {
					return true
				}
				seen[status.Message] = true
			}
		}
	}
	return false
}
