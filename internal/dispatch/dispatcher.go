package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/social-publisher/internal/buffer"
	"github.com/social-publisher/internal/logstore"
	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/status"
	"github.com/social-publisher/internal/storage"
	"github.com/social-publisher/pkg/logger"
)

// Per-item meta keys written by the dispatcher
const (
	lastSentKey  = "_status_last_sent"
	successKey   = "_status_success"
	errorFlagKey = "_status_error"
)

// CredentialProvider is the credential row the dispatcher authenticates with
const CredentialProvider = "buffer"

// Store is the slice of the repository the dispatcher needs
type Store interface {
	GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error)
	GetSettings(ctx context.Context, contentType string) (models.Settings, error)
	GetCredential(ctx context.Context, provider string) (*models.Credential, error)
	GetMeta(ctx context.Context, itemID int64, key string) (string, bool, error)
	SaveMeta(ctx context.Context, itemID int64, key, value string) error
	DeleteMeta(ctx context.Context, itemID int64, key string) error
}

// APIClient is the remote scheduling API surface used during dispatch
type APIClient interface {
	SetTokens(accessToken, refreshToken string, expiry time.Time)
	Profiles(ctx context.Context, forceRefresh bool, ttl time.Duration) (models.Profiles, error)
	CreateStatus(ctx context.Context, pending *models.PendingStatus) (*buffer.Update, error)
}

// Dispatcher runs the publish-time pipeline: look up settings and profiles,
// build pending statuses and send each one to the scheduling API, recording
// per-entry outcomes
type Dispatcher struct {
	repo            Store
	api             APIClient
	builder         *status.Builder
	logs            *logstore.Store
	logEnabled      bool
	profileCacheTTL time.Duration
	now             func() time.Time
	log             *logger.Logger
}

// New creates a dispatcher
func New(repo Store, api APIClient, builder *status.Builder, logs *logstore.Store, logEnabled bool, profileCacheTTL time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:            repo,
		api:             api,
		builder:         builder,
		logs:            logs,
		logEnabled:      logEnabled,
		profileCacheTTL: profileCacheTTL,
		now:             time.Now,
		log:             log.WithComponent("dispatch"),
	}
}

// Publish runs one full dispatch cycle for an item and action. A nil error
// with a nil entry list means nothing was configured for the item's content
// type, which is not an error. Configuration and resolution failures return a
// typed error before any network call; per-entry transport failures are
// captured in the returned log entries instead.
func (d *Dispatcher) Publish(ctx context.Context, itemID int64, action models.Action) ([]models.LogEntry, error) {
	if _, ok := models.SupportedActions[action]; !ok {
		return nil, fmt.Errorf("the %s action is not supported", action)
	}

	item, err := d.repo.GetContentItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("no content item found for ID %d: %w", itemID, err)
	}

	settings, err := d.repo.GetSettings(ctx, item.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		// Content type not configured; nothing to do
		return nil, nil
	}

	credential, err := d.repo.GetCredential(ctx, CredentialProvider)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !credential.Valid() {
		return nil, fmt.Errorf("the scheduling service has not been authorized; connect an account before publishing statuses")
	}
	d.api.SetTokens(credential.AccessToken, credential.RefreshToken, credential.Expiry)

	profiles, err := d.api.Profiles(ctx, false, d.profileCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}

	statuses, err := d.builder.BuildAll(item, settings, profiles, action)
	if err != nil {
		return nil, err
	}

	return d.Send(ctx, statuses, itemID, action, profiles), nil
}

// Send delivers each pending status to the API sequentially, one call per
// entry. A failing entry never stops the remaining ones, and the returned log
// entries preserve input order. After the loop the last-sent timestamp and a
// durable success/error indicator are recorded, and the log is appended when
// logging is enabled.
func (d *Dispatcher) Send(ctx context.Context, statuses []models.PendingStatus, itemID int64, action models.Action, profiles models.Profiles) []models.LogEntry {
	cycleID := uuid.NewString()
	entries := make([]models.LogEntry, 0, len(statuses))
	hadErrors := false

	for i := range statuses {
		pending := statuses[i]

		entry := models.LogEntry{
			Date:        d.now(),
			Status:      &pending,
			ProfileID:   pending.ProfileID(),
			ProfileName: profileLabel(profiles, pending.ProfileID()),
			CycleID:     cycleID,
		}

		update, err := d.api.CreateStatus(ctx, &pending)
		if err != nil {
			hadErrors = true
			entry.Success = false
			entry.Message = err.Error()
			d.log.Error().
				Err(err).
				Int64("item_id", itemID).
				Str("profile_id", pending.ProfileID()).
				Str("action", string(action)).
				Msg("Failed to send status")
		} else {
			entry.Success = true
			entry.ProfileID = update.ProfileID
			entry.Message = update.Message
			entry.StatusText = update.StatusText
			entry.StatusCreatedAt = update.StatusCreatedAt
			entry.StatusDueAt = update.DueAt
		}

		entries = append(entries, entry)
	}

	// Record the last dispatch time; the lifecycle detector's cooldown guard
	// reads it to absorb rapid duplicate update saves
	d.saveMeta(ctx, itemID, lastSentKey, strconv.FormatInt(d.now().Unix(), 10))

	if hadErrors {
		d.saveMeta(ctx, itemID, successKey, "0")
		d.saveMeta(ctx, itemID, errorFlagKey, "1")
	} else {
		d.saveMeta(ctx, itemID, successKey, "1")
		if err := d.repo.DeleteMeta(ctx, itemID, errorFlagKey); err != nil {
			d.log.Warn().Err(err).Int64("item_id", itemID).Msg("Failed to clear error indicator")
		}
	}

	if d.logEnabled {
		if err := d.logs.Append(ctx, itemID, entries); err != nil {
			d.log.Error().Err(err).Int64("item_id", itemID).Msg("Failed to append dispatch log")
		}
	}

	d.log.Info().
		Int64("item_id", itemID).
		Str("action", string(action)).
		Int("sent", len(entries)).
		Bool("errors", hadErrors).
		Msg("Dispatch cycle complete")

	return entries
}

// RecordFailure writes a single synthetic error entry for a dispatch cycle
// that failed before any status was sent. No-op when logging is disabled.
func (d *Dispatcher) RecordFailure(ctx context.Context, itemID int64, cause error) {
	if !d.logEnabled {
		return
	}

	entry := models.LogEntry{
		Date:    d.now(),
		Success: false,
		Message: cause.Error(),
	}
	if err := d.logs.Append(ctx, itemID, []models.LogEntry{entry}); err != nil {
		d.log.Error().Err(err).Int64("item_id", itemID).Msg("Failed to record dispatch failure")
	}
}

// LastSent returns the time of the item's most recent dispatch cycle
func (d *Dispatcher) LastSent(ctx context.Context, itemID int64) (time.Time, bool) {
	raw, found, err := d.repo.GetMeta(ctx, itemID, lastSentKey)
	if err != nil || !found {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (d *Dispatcher) saveMeta(ctx context.Context, itemID int64, key, value string) {
	if err := d.repo.SaveMeta(ctx, itemID, key, value); err != nil {
		d.log.Error().Err(err).Int64("item_id", itemID).Str("key", key).Msg("Failed to save meta")
	}
}

func profileLabel(profiles models.Profiles, profileID string) string {
	if profile, ok := profiles[profileID]; ok {
		return profile.Label()
	}
	return profileID
}
