package status

import (
	"errors"
	"fmt"
	"sort"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/tags"
	"github.com/social-publisher/pkg/logger"
)

// decommissionedServices are networks the scheduling API no longer supports;
// profiles belonging to them are silently skipped
var decommissionedServices = map[string]bool{
	"google": true,
}

// errSkipStatus marks a (profile, template) combination that cannot produce a
// status and should be skipped without failing the cycle
var errSkipStatus = errors.New("status skipped")

// NothingEnabledError is returned when a dispatch cycle finds no enabled
// statuses. It is user-actionable, so the message names the content type, the
// action performed and where to fix the configuration.
type NothingEnabledError struct {
	ContentType  string
	TypeLabel    string
	Action       models.Action
	SettingsPath string
}

func (e *NothingEnabledError) Error() string {
	return fmt.Sprintf(
		"no statuses are enabled for sending %q items on the %s action; to send statuses when you %s a %s, go to %s > %s > %s and tick Enabled",
		e.ContentType, e.Action.Label(), e.Action.Label(), e.ContentType,
		e.SettingsPath, e.TypeLabel, e.Action.Label(),
	)
}

// AdjustFunc is a post-build extension point that may modify the pending
// status before it is queued for dispatch
type AdjustFunc func(status *models.PendingStatus, item *models.ContentItem, profileID, service string, template models.StatusTemplate)

// Builder turns configured status templates into pending statuses ready for
// the dispatcher
type Builder struct {
	limits       map[string]int
	siteName     string
	settingsPath string
	expand       tags.ExpandFunc
	adjust       AdjustFunc
	log          *logger.Logger
}

// NewBuilder creates a status builder. limits maps service names to maximum
// message lengths (0 or absent means unlimited).
func NewBuilder(limits map[string]int, siteName, settingsPath string, log *logger.Logger) *Builder {
	return &Builder{
		limits:       limits,
		siteName:     siteName,
		settingsPath: settingsPath,
		log:          log.WithComponent("status"),
	}
}

// SetExpansion sets the inline macro expansion hook passed to tag resolution
func (b *Builder) SetExpansion(fn tags.ExpandFunc) {
	b.expand = fn
}

// SetAdjust sets the post-build adjustment hook
func (b *Builder) SetAdjust(fn AdjustFunc) {
	b.adjust = fn
}

// CharacterLimit returns the maximum message length for a service, 0 meaning
// unlimited
func (b *Builder) CharacterLimit(service string) int {
	return b.limits[service]
}

// BuildAll resolves every enabled (profile, template) combination for the
// given action into pending statuses, in configured order. Returns a
// NothingEnabledError when the cycle would dispatch nothing.
func (b *Builder) BuildAll(item *models.ContentItem, settings models.Settings, profiles models.Profiles, action models.Action) ([]models.PendingStatus, error) {
	resolver := tags.NewResolver(item, b.siteName)
	if b.expand != nil {
		resolver.SetExpansion(b.expand)
	}

	// Map iteration order is random; keep dispatch order stable across cycles
	profileIDs := make([]string, 0, len(settings))
	for profileID := range settings {
		if profileID == models.DefaultProfileID {
			continue
		}
		profileIDs = append(profileIDs, profileID)
	}
	sort.Strings(profileIDs)

	var statuses []models.PendingStatus

	for _, profileID := range profileIDs {
		// Skip profiles that have been removed from the remote account
		profile, ok := profiles[profileID]
		if !ok {
			b.log.Debug().Str("profile_id", profileID).Msg("Profile no longer exists remotely, skipping")
			continue
		}

		if decommissionedServices[profile.Service] {
			b.log.Debug().Str("profile_id", profileID).Str("service", profile.Service).Msg("Service decommissioned, skipping")
			continue
		}

		if !settings.ProfileEnabled(profileID) {
			continue
		}

		actionSettings := settings.ActionSettingsFor(profileID, profile.Service, action)
		if !actionSettings.Enabled {
			continue
		}

		for _, template := range actionSettings.Statuses {
			pending, err := b.Build(resolver, item, profile, template)
			if err != nil {
				if errors.Is(err, errSkipStatus) {
					continue
				}
				return nil, err
			}
			statuses = append(statuses, *pending)
		}
	}

	if len(statuses) == 0 {
		return nil, &NothingEnabledError{
			ContentType:  item.Type,
			TypeLabel:    item.SingularTypeLabel(),
			Action:       action,
			SettingsPath: b.settingsPath,
		}
	}

	return statuses, nil
}

// Build resolves one status template against one profile into a pending status
func (b *Builder) Build(resolver *tags.Resolver, item *models.ContentItem, profile models.Profile, template models.StatusTemplate) (*models.PendingStatus, error) {
	limit := b.CharacterLimit(profile.Service)

	pending := &models.PendingStatus{
		ProfileIDs: []string{profile.ID},
		Text:       resolver.ResolveText(template.Message, limit),
		Shorten:    true,
	}

	switch template.Schedule {
	case models.ScheduleQueueBottom, "":
		// API default, nothing to set
	case models.ScheduleQueueTop:
		pending.Top = true
	case models.ScheduleNow:
		pending.Now = true
	default:
		// All custom and date-based variants arrive as a precomputed due time
		pending.ScheduledAt = template.ScheduledAt
	}

	image := resolveImagePolicy(profile.Service, template.Image)

	if item.HasFeaturedImage() && image != models.ImageOpenGraph {
		media := &models.MediaBlock{
			Title:       tags.ExtractTitle(item),
			Description: tags.ExtractExcerpt(item),
			Picture:     item.ImageURL,
		}

		switch image {
		case models.ImageLinked:
			media.Link = item.Permalink
		case models.ImageUnlinked:
			// The API rejects unlinked media without a thumbnail
			media.Thumbnail = item.ImageThumbnailURL
			if media.Thumbnail == "" {
				media.Thumbnail = item.ImageURL
			}
		}

		pending.Media = media
	}

	if profile.Service == "pinterest" {
		board := template.SubProfileID
		if len(profile.SubProfiles) > 0 && !profile.HasSubProfile(board) {
			b.log.Warn().
				Str("profile_id", profile.ID).
				Str("sub_profile", board).
				Msg("Configured board does not belong to this profile, skipping status")
			return nil, errSkipStatus
		}
		// Without a board list, the raw identifier passes through for the
		// remote side to resolve
		pending.SubProfileID = board
	}

	if b.adjust != nil {
		b.adjust(pending, item, profile.ID, profile.Service, template)
	}

	return pending, nil
}

// resolveImagePolicy constrains the configured image policy to what the
// target service supports. Defaults can otherwise carry a policy the service
// rejects.
func resolveImagePolicy(service string, configured models.ImagePolicy) models.ImagePolicy {
	switch service {
	case "twitter":
		// Twitter does not support images linked to the item
		if configured == models.ImageLinked {
			return models.ImageUnlinked
		}
	case "pinterest", "instagram":
		// These services only accept unlinked images
		return models.ImageUnlinked
	}
	return configured
}
