package models

import (
	"time"
)

// Action is the lifecycle event category that triggers a dispatch
type Action string

const (
	ActionPublish Action = "publish"
	ActionUpdate  Action = "update"
	ActionRepost  Action = "repost"
)

// SupportedActions lists the actions that can trigger statuses, with display labels
var SupportedActions = map[Action]string{
	ActionPublish: "Publish",
	ActionUpdate:  "Update",
	ActionRepost:  "Repost",
}

// Label returns the action's display label
func (a Action) Label() string {
	if label, ok := SupportedActions[a]; ok {
		return label
	}
	return string(a)
}

// SchedulePolicy controls when the remote API publishes a status
type SchedulePolicy string

const (
	ScheduleQueueBottom SchedulePolicy = "queue_bottom"
	ScheduleQueueTop    SchedulePolicy = "queue_top"
	ScheduleNow         SchedulePolicy = "now"
	ScheduleCustom      SchedulePolicy = "custom"
	ScheduleCustomField SchedulePolicy = "custom_field"
	ScheduleEventStart  SchedulePolicy = "event_start"
	ScheduleEventEnd    SchedulePolicy = "event_end"
	ScheduleSpecific    SchedulePolicy = "specific"
)

// ImagePolicy controls how the featured image is attached to a status.
// Numeric values match the stored settings format.
type ImagePolicy int

const (
	ImageOpenGraph ImagePolicy = 0 // Let the network's OpenGraph scrape decide
	ImageLinked    ImagePolicy = 1 // Attach featured image, linked to the item
	ImageUnlinked  ImagePolicy = 2 // Attach featured image, not linked
)

// StatusTemplate is one configured status message for a (profile, action) pair.
// Order within its group is significant for display numbering only.
type StatusTemplate struct {
	Message      string         `json:"message"`
	Schedule     SchedulePolicy `json:"schedule"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"` // Precomputed due time for custom schedules
	Image        ImagePolicy    `json:"image"`
	SubProfileID string         `json:"sub_profile,omitempty"` // e.g. Pinterest board
}

// PendingStatus is a fully resolved, network-ready payload awaiting transmission.
// Created by the status builder, consumed once by the dispatcher.
type PendingStatus struct {
	ProfileIDs   []string    `json:"profile_ids"`
	Text         string      `json:"text"`
	Shorten      bool        `json:"shorten"`
	Top          bool        `json:"top,omitempty"`
	Now          bool        `json:"now,omitempty"`
	ScheduledAt  *time.Time  `json:"scheduled_at,omitempty"`
	SubProfileID string      `json:"sub_profile_id,omitempty"`
	Media        *MediaBlock `json:"media,omitempty"`
}

// MediaBlock describes the image attachment for a status. Link is only set
// when the image is linked to the item; Thumbnail is required when it is not.
type MediaBlock struct {
	Link        string `json:"link,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Picture     string `json:"picture"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// ProfileID returns the first target profile ID, which is the only one used
// by the scheduling API today
func (p *PendingStatus) ProfileID() string {
	if len(p.ProfileIDs) == 0 {
		return ""
	}
	return p.ProfileIDs[0]
}
