package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-publisher/internal/buffer"
	"github.com/social-publisher/internal/logstore"
	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/status"
	"github.com/social-publisher/internal/storage"
	"github.com/social-publisher/pkg/logger"
)

type fakeStore struct {
	item       *models.ContentItem
	settings   models.Settings
	credential *models.Credential
	meta       map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{meta: make(map[string]string)}
}

func (f *fakeStore) metaKey(itemID int64, key string) string {
	return fmt.Sprintf("%d:%s", itemID, key)
}

func (f *fakeStore) GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error) {
	if f.item == nil || f.item.ID != id {
		return nil, storage.ErrNotFound
	}
	return f.item, nil
}

func (f *fakeStore) GetSettings(ctx context.Context, contentType string) (models.Settings, error) {
	return f.settings, nil
}

func (f *fakeStore) GetCredential(ctx context.Context, provider string) (*models.Credential, error) {
	if f.credential == nil {
		return nil, storage.ErrNotFound
	}
	return f.credential, nil
}

func (f *fakeStore) GetMeta(ctx context.Context, itemID int64, key string) (string, bool, error) {
	value, ok := f.meta[f.metaKey(itemID, key)]
	return value, ok, nil
}

func (f *fakeStore) SaveMeta(ctx context.Context, itemID int64, key, value string) error {
	f.meta[f.metaKey(itemID, key)] = value
	return nil
}

func (f *fakeStore) DeleteMeta(ctx context.Context, itemID int64, key string) error {
	delete(f.meta, f.metaKey(itemID, key))
	return nil
}

type fakeAPI struct {
	profiles models.Profiles

	tokensSet bool
	calls     []models.PendingStatus
	failOn    map[int]error
}

func (f *fakeAPI) SetTokens(accessToken, refreshToken string, expiry time.Time) {
	f.tokensSet = true
}

func (f *fakeAPI) Profiles(ctx context.Context, forceRefresh bool, ttl time.Duration) (models.Profiles, error) {
	return f.profiles, nil
}

func (f *fakeAPI) CreateStatus(ctx context.Context, pending *models.PendingStatus) (*buffer.Update, error) {
	index := len(f.calls)
	f.calls = append(f.calls, *pending)

	if err, ok := f.failOn[index]; ok {
		return nil, err
	}

	created := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	return &buffer.Update{
		ProfileID:       pending.ProfileID(),
		Message:         "ok",
		StatusText:      pending.Text,
		StatusCreatedAt: &created,
	}, nil
}

func dispatchProfiles() models.Profiles {
	return models.Profiles{
		"fb1": {ID: "fb1", Service: "facebook", FormattedService: "Facebook", Username: "Acme", Enabled: true},
		"tw1": {ID: "tw1", Service: "twitter", FormattedService: "Twitter", Username: "@acme", Enabled: true},
	}
}

func dispatchSettings(templates ...models.StatusTemplate) models.Settings {
	return models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{
				models.ActionPublish: {Enabled: true, Statuses: templates},
			},
		},
		"fb1": {Enabled: true},
		"tw1": {Enabled: true},
	}
}

func newTestDispatcher(store *fakeStore, api *fakeAPI, logEnabled bool) (*Dispatcher, *logstore.Store) {
	log := &logger.Logger{Logger: zerolog.Nop()}
	builder := status.NewBuilder(map[string]int{"twitter": 280}, "Acme", "Settings > Status Templates", log)
	logs := logstore.New(store, log)
	d := New(store, api, builder, logs, logEnabled, time.Hour, log)
	return d, logs
}

func validCredential() *models.Credential {
	return &models.Credential{
		Provider:    CredentialProvider,
		AccessToken: "token",
	}
}

func TestPublishHappyPath(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post", Title: "Launch", Permalink: "https://example.com/launch/"}
	store.settings = dispatchSettings(models.StatusTemplate{Message: "{title}"})
	store.credential = validCredential()

	api := &fakeAPI{profiles: dispatchProfiles()}
	d, logs := newTestDispatcher(store, api, true)

	entries, err := d.Publish(context.Background(), 7, models.ActionPublish)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, api.tokensSet)
	assert.Equal(t, "fb1", entries[0].ProfileID)
	assert.Equal(t, "tw1", entries[1].ProfileID)
	assert.Equal(t, "Facebook: Acme", entries[0].ProfileName)
	for _, entry := range entries {
		assert.Equal(t, models.LogStateSuccess, entry.State())
		assert.Equal(t, "Launch", entry.StatusText)
	}

	// Entries are identical across both views of the cycle
	stored, err := logs.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, entries[0].CycleID, stored[1].CycleID)

	// Durable indicators
	success, found, _ := store.GetMeta(context.Background(), 7, "_status_success")
	assert.True(t, found)
	assert.Equal(t, "1", success)
	_, found, _ = store.GetMeta(context.Background(), 7, "_status_error")
	assert.False(t, found)
	_, found, _ = store.GetMeta(context.Background(), 7, "_status_last_sent")
	assert.True(t, found)
}

func TestPublishUnsupportedAction(t *testing.T) {
	d, _ := newTestDispatcher(newFakeStore(), &fakeAPI{}, true)

	_, err := d.Publish(context.Background(), 7, models.Action("delete"))
	assert.ErrorContains(t, err, "not supported")
}

func TestPublishUnknownItem(t *testing.T) {
	d, _ := newTestDispatcher(newFakeStore(), &fakeAPI{}, true)

	_, err := d.Publish(context.Background(), 99, models.ActionPublish)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPublishNoSettingsIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post"}

	api := &fakeAPI{profiles: dispatchProfiles()}
	d, _ := newTestDispatcher(store, api, true)

	entries, err := d.Publish(context.Background(), 7, models.ActionPublish)
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.Empty(t, api.calls)
}

func TestPublishRequiresCredential(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post"}
	store.settings = dispatchSettings(models.StatusTemplate{Message: "{title}"})

	api := &fakeAPI{profiles: dispatchProfiles()}
	d, _ := newTestDispatcher(store, api, true)

	_, err := d.Publish(context.Background(), 7, models.ActionPublish)
	assert.ErrorContains(t, err, "authorized")
	assert.Empty(t, api.calls)
}

func TestPublishNothingEnabledSurfacesTypedError(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post"}
	store.settings = models.Settings{
		models.DefaultProfileID: {
			Actions: map[models.Action]models.ActionSettings{},
		},
		"tw1": {Enabled: false},
	}
	store.credential = validCredential()

	api := &fakeAPI{profiles: dispatchProfiles()}
	d, _ := newTestDispatcher(store, api, true)

	_, err := d.Publish(context.Background(), 7, models.ActionPublish)

	var nothingEnabled *status.NothingEnabledError
	assert.ErrorAs(t, err, &nothingEnabled)
}

func TestSendIsolatesEntryFailures(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post", Title: "Launch"}
	store.settings = dispatchSettings(
		models.StatusTemplate{Message: "one {title}"},
		models.StatusTemplate{Message: "two {title}"},
	)
	store.credential = validCredential()

	// Four statuses total (two templates, two profiles); fail the second
	api := &fakeAPI{
		profiles: dispatchProfiles(),
		failOn:   map[int]error{1: errors.New("profile suspended")},
	}
	d, _ := newTestDispatcher(store, api, true)

	entries, err := d.Publish(context.Background(), 7, models.ActionPublish)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, models.LogStateSuccess, entries[0].State())
	assert.Equal(t, models.LogStateError, entries[1].State())
	assert.Equal(t, "profile suspended", entries[1].Message)
	assert.Equal(t, models.LogStateSuccess, entries[2].State())
	assert.Equal(t, models.LogStateSuccess, entries[3].State())

	// All four were attempted despite the mid-cycle failure
	assert.Len(t, api.calls, 4)

	success, _, _ := store.GetMeta(context.Background(), 7, "_status_success")
	assert.Equal(t, "0", success)
	errorFlag, found, _ := store.GetMeta(context.Background(), 7, "_status_error")
	assert.True(t, found)
	assert.Equal(t, "1", errorFlag)
}

func TestSendSkipsLogWhenDisabled(t *testing.T) {
	store := newFakeStore()
	store.item = &models.ContentItem{ID: 7, Type: "post", Title: "Launch"}
	store.settings = dispatchSettings(models.StatusTemplate{Message: "{title}"})
	store.credential = validCredential()

	api := &fakeAPI{profiles: dispatchProfiles()}
	d, logs := newTestDispatcher(store, api, false)

	entries, err := d.Publish(context.Background(), 7, models.ActionPublish)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	stored, err := logs.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRecordFailure(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{}
	d, logs := newTestDispatcher(store, api, true)

	d.RecordFailure(context.Background(), 7, errors.New("profiles unavailable"))

	stored, err := logs.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.LogStateError, stored[0].State())
	assert.Equal(t, "profiles unavailable", stored[0].Message)
}

func TestRecordFailureNoOpWhenLogDisabled(t *testing.T) {
	store := newFakeStore()
	d, logs := newTestDispatcher(store, &fakeAPI{}, false)

	d.RecordFailure(context.Background(), 7, errors.New("boom"))

	stored, err := logs.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestLastSent(t *testing.T) {
	store := newFakeStore()
	d, _ := newTestDispatcher(store, &fakeAPI{}, true)

	_, ok := d.LastSent(context.Background(), 7)
	assert.False(t, ok)

	sent := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveMeta(context.Background(), 7, "_status_last_sent", fmt.Sprintf("%d", sent.Unix())))

	got, ok := d.LastSent(context.Background(), 7)
	require.True(t, ok)
	assert.Equal(t, sent, got.UTC())

	// Garbage timestamps are treated as never sent
	require.NoError(t, store.SaveMeta(context.Background(), 7, "_status_last_sent", "not-a-number"))
	_, ok = d.LastSent(context.Background(), 7)
	assert.False(t, ok)
}
