package lifecycle

import (
	"context"
	"time"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/pkg/logger"
)

// StatusPublished is the content status that triggers dispatch
const StatusPublished = "publish"

// Durable deferred-state flags, stored as item meta so they survive across
// the two physically separate editor requests
const (
	needsPublishingKey = "_needs_publishing"
	needsUpdatingKey   = "_needs_updating"
)

// transitionalStatuses never trigger a dispatch: saves that move an item into
// these states are editor noise (new item screens, draft saves, revisions,
// trashing)
var transitionalStatuses = map[string]bool{
	"draft":      true,
	"auto-draft": true,
	"inherit":    true,
	"trash":      true,
}

// Publisher runs a dispatch cycle and records its outcome
type Publisher interface {
	Publish(ctx context.Context, itemID int64, action models.Action) ([]models.LogEntry, error)
	RecordFailure(ctx context.Context, itemID int64, cause error)
	LastSent(ctx context.Context, itemID int64) (time.Time, bool)
}

// FlagStore persists the deferred-state flags. TakeMeta must read and clear
// in one step so a flag is consumed at most once.
type FlagStore interface {
	SaveMeta(ctx context.Context, itemID int64, key, value string) error
	TakeMeta(ctx context.Context, itemID int64, key string) (string, bool, error)
}

// Detector decides, exactly once per logical publish or update transition,
// whether to dispatch statuses. The host environment fires two to four raw
// save callbacks per user action across three overlapping save paths (classic
// form submit, REST create, the block editor's two-phase save); the detector
// collapses them to a single decision.
type Detector struct {
	repo      FlagStore
	publisher Publisher
	cooldown  time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// New creates a detector. cooldown is the minimum interval between update
// dispatches for the same item; it absorbs editor tools that call the update
// path several times for one user save.
func New(repo FlagStore, publisher Publisher, cooldown time.Duration, log *logger.Logger) *Detector {
	return &Detector{
		repo:      repo,
		publisher: publisher,
		cooldown:  cooldown,
		now:       time.Now,
		log:       log.WithComponent("lifecycle"),
	}
}

// OnContentSaved is the lifecycle entry point, called for every raw save
// event. Dispatch failures are recorded in the item's log rather than
// returned; the error return covers flag persistence only.
func (d *Detector) OnContentSaved(ctx context.Context, itemID int64, newStatus, oldStatus string, isAPIRequest, supportsBlockEditor bool) error {
	if transitionalStatuses[newStatus] {
		return nil
	}

	log := d.log.WithItemID(itemID)
	log.Debug().
		Str("new_status", newStatus).
		Str("old_status", oldStatus).
		Bool("api_request", isAPIRequest).
		Bool("block_editor", supportsBlockEditor).
		Msg("Content saved")

	// A previous block-editor request deferred its dispatch until this
	// second, metadata-carrying save arrived. Consume the flag and run now.
	if _, deferred, err := d.repo.TakeMeta(ctx, itemID, needsPublishingKey); err != nil {
		return err
	} else if deferred {
		log.Debug().Msg("Deferred publish due, dispatching")
		d.dispatch(ctx, itemID, models.ActionPublish)
		return nil
	}

	if _, deferred, err := d.repo.TakeMeta(ctx, itemID, needsUpdatingKey); err != nil {
		return err
	} else if deferred {
		log.Debug().Msg("Deferred update due, dispatching")
		d.dispatchUpdate(ctx, itemID)
		return nil
	}

	// First transition into the published state
	if newStatus == StatusPublished && oldStatus != StatusPublished {
		switch {
		case !isAPIRequest:
			log.Debug().Msg("Classic editor publish")
			d.dispatch(ctx, itemID, models.ActionPublish)
		case supportsBlockEditor:
			// The block editor sends a second request with the remaining
			// metadata; defer until it arrives
			log.Debug().Msg("Block editor publish, deferring")
			return d.repo.SaveMeta(ctx, itemID, needsPublishingKey, "1")
		default:
			log.Debug().Msg("REST publish")
			d.dispatch(ctx, itemID, models.ActionPublish)
		}
		return nil
	}

	// Already published on both sides: an update
	if newStatus == StatusPublished && oldStatus == StatusPublished {
		switch {
		case !isAPIRequest:
			log.Debug().Msg("Classic editor update")
			d.dispatchUpdate(ctx, itemID)
		case supportsBlockEditor:
			log.Debug().Msg("Block editor update, deferring")
			return d.repo.SaveMeta(ctx, itemID, needsUpdatingKey, "1")
		default:
			log.Debug().Msg("REST update")
			d.dispatchUpdate(ctx, itemID)
		}
	}

	return nil
}

// dispatchUpdate runs an update dispatch unless the previous cycle for this
// item finished within the cooldown window
func (d *Detector) dispatchUpdate(ctx context.Context, itemID int64) {
	if lastSent, ok := d.publisher.LastSent(ctx, itemID); ok {
		if elapsed := d.now().Sub(lastSent); elapsed < d.cooldown {
			d.log.Debug().
				Int64("item_id", itemID).
				Dur("elapsed", elapsed).
				Msg("Within update cooldown, skipping dispatch")
			return
		}
	}
	d.dispatch(ctx, itemID, models.ActionUpdate)
}

// dispatch runs one cycle and records a pre-send failure, if any, in the
// item's log. No error surfaces to the save path; failures are inspected
// later via the log.
func (d *Detector) dispatch(ctx context.Context, itemID int64, action models.Action) {
	if _, err := d.publisher.Publish(ctx, itemID, action); err != nil {
		d.log.Warn().
			Err(err).
			Int64("item_id", itemID).
			Str("action", string(action)).
			Msg("Dispatch cycle failed before sending")
		d.publisher.RecordFailure(ctx, itemID, err)
	}
}
