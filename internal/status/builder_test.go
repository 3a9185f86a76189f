package status

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/tags"
	"github.com/social-publisher/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

func newTestResolver(b *Builder, item *models.ContentItem) *tags.Resolver {
	resolver := tags.NewResolver(item, b.siteName)
	if b.expand != nil {
		resolver.SetExpansion(b.expand)
	}
	return resolver
}

func testBuilder() *Builder {
	limits := map[string]int{
		"twitter":   280,
		"pinterest": 500,
		"facebook":  5000,
	}
	return NewBuilder(limits, "Acme", "Settings > Status Templates", testLogger())
}

func builderItem() *models.ContentItem {
	return &models.ContentItem{
		ID:                7,
		Type:              "post",
		TypeLabel:         "Posts",
		Title:             "Launch day",
		Excerpt:           "We shipped",
		Content:           "We shipped the thing",
		Permalink:         "https://example.com/launch/",
		PublishedAt:       time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC),
		ImageURL:          "https://example.com/image.jpg",
		ImageThumbnailURL: "https://example.com/thumb.jpg",
	}
}

func profileDirectory() models.Profiles {
	return models.Profiles{
		"tw1": {ID: "tw1", Service: "twitter", FormattedService: "Twitter", Username: "@acme", Enabled: true},
		"fb1": {ID: "fb1", Service: "facebook", FormattedService: "Facebook", Username: "Acme", Enabled: true},
		"pi1": {
			ID: "pi1", Service: "pinterest", FormattedService: "Pinterest", Username: "acme", Enabled: true,
			SubProfiles: []models.SubProfile{{ID: "board1", Name: "Launches"}},
		},
		"go1": {ID: "go1", Service: "google", FormattedService: "Google+", Username: "acme", Enabled: true},
	}
}

func settingsFor(profileID string, action models.Action, templates ...models.StatusTemplate) models.Settings {
	return models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{
				action: {Enabled: true, Statuses: templates},
			},
		},
		profileID: {Enabled: true},
	}
}

func TestBuildAllResolvesMessage(t *testing.T) {
	b := testBuilder()
	settings := settingsFor("tw1", models.ActionPublish, models.StatusTemplate{Message: "New: {title} {url}"})

	statuses, err := b.BuildAll(builderItem(), settings, profileDirectory(), models.ActionPublish)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	assert.Equal(t, []string{"tw1"}, statuses[0].ProfileIDs)
	assert.Equal(t, "New: Launch day https://example.com/launch", statuses[0].Text)
	assert.True(t, statuses[0].Shorten)
}

func TestBuildAllNothingEnabled(t *testing.T) {
	b := testBuilder()
	settings := models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{
				models.ActionPublish: {Enabled: true, Statuses: []models.StatusTemplate{{Message: "{title}"}}},
			},
		},
		"tw1": {Enabled: false},
	}

	_, err := b.BuildAll(builderItem(), settings, profileDirectory(), models.ActionPublish)

	var nothingEnabled *NothingEnabledError
	require.ErrorAs(t, err, &nothingEnabled)
	assert.Equal(t, "post", nothingEnabled.ContentType)
	assert.Equal(t, "Posts", nothingEnabled.TypeLabel)
	assert.Equal(t, models.ActionPublish, nothingEnabled.Action)
	assert.Contains(t, err.Error(), "Settings > Status Templates")
	assert.Contains(t, err.Error(), "Publish")
}

func TestBuildAllSkipsDisabledAction(t *testing.T) {
	b := testBuilder()
	settings := settingsFor("tw1", models.ActionPublish, models.StatusTemplate{Message: "{title}"})

	_, err := b.BuildAll(builderItem(), settings, profileDirectory(), models.ActionUpdate)

	var nothingEnabled *NothingEnabledError
	assert.ErrorAs(t, err, &nothingEnabled)
}

func TestBuildAllSkipsUnknownAndDecommissionedProfiles(t *testing.T) {
	b := testBuilder()
	settings := models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{
				models.ActionPublish: {Enabled: true, Statuses: []models.StatusTemplate{{Message: "{title}"}}},
			},
		},
		"gone": {Enabled: true},
		"go1":  {Enabled: true},
		"tw1":  {Enabled: true},
	}

	statuses, err := b.BuildAll(builderItem(), settings, profileDirectory(), models.ActionPublish)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "tw1", statuses[0].ProfileID())
}

func TestBuildAllOrdersProfilesDeterministically(t *testing.T) {
	b := testBuilder()
	settings := models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{
				models.ActionPublish: {Enabled: true, Statuses: []models.StatusTemplate{{Message: "{title}"}}},
			},
		},
		"tw1": {Enabled: true},
		"fb1": {Enabled: true},
	}

	for i := 0; i < 5; i++ {
		statuses, err := b.BuildAll(builderItem(), settings, profileDirectory(), models.ActionPublish)
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		assert.Equal(t, "fb1", statuses[0].ProfileID())
		assert.Equal(t, "tw1", statuses[1].ProfileID())
	}
}

func TestBuildScheduleFlags(t *testing.T) {
	b := testBuilder()
	item := builderItem()
	profile := profileDirectory()["tw1"]

	resolver := newTestResolver(b, item)

	bottom, err := b.Build(resolver, item, profile, models.StatusTemplate{Message: "{title}", Schedule: models.ScheduleQueueBottom})
	require.NoError(t, err)
	assert.False(t, bottom.Top)
	assert.False(t, bottom.Now)
	assert.Nil(t, bottom.ScheduledAt)

	top, err := b.Build(resolver, item, profile, models.StatusTemplate{Message: "{title}", Schedule: models.ScheduleQueueTop})
	require.NoError(t, err)
	assert.True(t, top.Top)

	now, err := b.Build(resolver, item, profile, models.StatusTemplate{Message: "{title}", Schedule: models.ScheduleNow})
	require.NoError(t, err)
	assert.True(t, now.Now)

	due := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	custom, err := b.Build(resolver, item, profile, models.StatusTemplate{Message: "{title}", Schedule: models.ScheduleCustom, ScheduledAt: &due})
	require.NoError(t, err)
	require.NotNil(t, custom.ScheduledAt)
	assert.Equal(t, due, *custom.ScheduledAt)
}

func TestBuildImagePolicies(t *testing.T) {
	b := testBuilder()
	item := builderItem()

	facebook := profileDirectory()["fb1"]
	twitter := profileDirectory()["tw1"]
	resolver := newTestResolver(b, item)

	// OpenGraph means no media block at all
	og, err := b.Build(resolver, item, facebook, models.StatusTemplate{Message: "{title}", Image: models.ImageOpenGraph})
	require.NoError(t, err)
	assert.Nil(t, og.Media)

	// Linked carries the permalink, no thumbnail
	linked, err := b.Build(resolver, item, facebook, models.StatusTemplate{Message: "{title}", Image: models.ImageLinked})
	require.NoError(t, err)
	require.NotNil(t, linked.Media)
	assert.Equal(t, "https://example.com/launch/", linked.Media.Link)
	assert.Equal(t, "https://example.com/image.jpg", linked.Media.Picture)
	assert.Empty(t, linked.Media.Thumbnail)

	// Twitter downgrades linked to unlinked
	tw, err := b.Build(resolver, item, twitter, models.StatusTemplate{Message: "{title}", Image: models.ImageLinked})
	require.NoError(t, err)
	require.NotNil(t, tw.Media)
	assert.Empty(t, tw.Media.Link)
	assert.Equal(t, "https://example.com/thumb.jpg", tw.Media.Thumbnail)
}

func TestBuildUnlinkedThumbnailFallback(t *testing.T) {
	b := testBuilder()
	item := builderItem()
	item.ImageThumbnailURL = ""
	resolver := newTestResolver(b, item)

	pending, err := b.Build(resolver, item, profileDirectory()["tw1"], models.StatusTemplate{Message: "{title}", Image: models.ImageUnlinked})
	require.NoError(t, err)
	require.NotNil(t, pending.Media)
	assert.Equal(t, "https://example.com/image.jpg", pending.Media.Thumbnail)
}

func TestBuildNoMediaWithoutFeaturedImage(t *testing.T) {
	b := testBuilder()
	item := builderItem()
	item.ImageURL = ""
	item.ImageThumbnailURL = ""
	resolver := newTestResolver(b, item)

	pending, err := b.Build(resolver, item, profileDirectory()["fb1"], models.StatusTemplate{Message: "{title}", Image: models.ImageLinked})
	require.NoError(t, err)
	assert.Nil(t, pending.Media)
}

func TestBuildPinterestBoardValidation(t *testing.T) {
	b := testBuilder()
	item := builderItem()
	pinterest := profileDirectory()["pi1"]
	resolver := newTestResolver(b, item)

	valid, err := b.Build(resolver, item, pinterest, models.StatusTemplate{Message: "{title}", SubProfileID: "board1"})
	require.NoError(t, err)
	assert.Equal(t, "board1", valid.SubProfileID)

	_, err = b.Build(resolver, item, pinterest, models.StatusTemplate{Message: "{title}", SubProfileID: "missing"})
	assert.ErrorIs(t, err, errSkipStatus)

	// Without a board list the identifier passes through unvalidated
	pinterest.SubProfiles = nil
	raw, err := b.Build(resolver, item, pinterest, models.StatusTemplate{Message: "{title}", SubProfileID: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "anything", raw.SubProfileID)
}

func TestBuildAdjustHook(t *testing.T) {
	b := testBuilder()
	b.SetAdjust(func(pending *models.PendingStatus, item *models.ContentItem, profileID, service string, template models.StatusTemplate) {
		pending.Text = pending.Text + " via hook"
	})

	item := builderItem()
	resolver := newTestResolver(b, item)

	pending, err := b.Build(resolver, item, profileDirectory()["tw1"], models.StatusTemplate{Message: "{title}"})
	require.NoError(t, err)
	assert.Equal(t, "Launch day via hook", pending.Text)
}

func TestCharacterLimit(t *testing.T) {
	b := testBuilder()

	assert.Equal(t, 280, b.CharacterLimit("twitter"))
	assert.Equal(t, 0, b.CharacterLimit("mastodon"))
}
