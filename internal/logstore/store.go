package logstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/pkg/logger"
)

// metaKey is the per-item meta key holding the serialized log
const metaKey = "_status_log"

// MetaStore is the slice of the repository the log store needs
type MetaStore interface {
	GetMeta(ctx context.Context, itemID int64, key string) (string, bool, error)
	SaveMeta(ctx context.Context, itemID int64, key, value string) error
	DeleteMeta(ctx context.Context, itemID int64, key string) error
}

// Store keeps an append-only dispatch log per content item
type Store struct {
	repo MetaStore
	log  *logger.Logger
}

// New creates a log store
func New(repo MetaStore, log *logger.Logger) *Store {
	return &Store{
		repo: repo,
		log:  log.WithComponent("logstore"),
	}
}

// Get returns all log entries for an item, oldest first
func (s *Store) Get(ctx context.Context, itemID int64) ([]models.LogEntry, error) {
	raw, found, err := s.repo.GetMeta(ctx, itemID, metaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}

	var entries []models.LogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode log for item %d: %w", itemID, err)
	}
	return entries, nil
}

// Append merges new entries after any existing ones. Existing entries are
// never overwritten or mutated.
func (s *Store) Append(ctx context.Context, itemID int64, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	existing, err := s.Get(ctx, itemID)
	if err != nil {
		return err
	}

	merged := append(existing, entries...)
	return s.save(ctx, itemID, merged)
}

// Clear removes the full log for an item
func (s *Store) Clear(ctx context.Context, itemID int64) error {
	return s.repo.DeleteMeta(ctx, itemID, metaKey)
}

// ClearPending removes entries that were accepted for future scheduling but
// never confirmed by the API: successful entries without a creation
// timestamp. Confirmed and error entries are preserved.
func (s *Store) ClearPending(ctx context.Context, itemID int64) error {
	entries, err := s.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	kept := make([]models.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Success && entry.StatusCreatedAt == nil {
			continue
		}
		kept = append(kept, entry)
	}

	if len(kept) == len(entries) {
		return nil
	}
	return s.save(ctx, itemID, kept)
}

// Export returns the item's log as a JSON array, the download format
func (s *Store) Export(ctx context.Context, itemID int64) ([]byte, error) {
	entries, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	return json.Marshal(entries)
}

func (s *Store) save(ctx context.Context, itemID int64, entries []models.LogEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode log for item %d: %w", itemID, err)
	}
	return s.repo.SaveMeta(ctx, itemID, metaKey, string(raw))
}
