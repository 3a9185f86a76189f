package storage

import (
	"context"
	"errors"
	"time"

	"github.com/social-publisher/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Content item operations
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error)
	UpdateContentItem(ctx context.Context, item *models.ContentItem) error
	ListPublishedItems(ctx context.Context, publishedAfter time.Time) ([]*models.ContentItem, error)

	// Per-item meta operations
	GetMeta(ctx context.Context, itemID int64, key string) (string, bool, error)
	SaveMeta(ctx context.Context, itemID int64, key, value string) error
	DeleteMeta(ctx context.Context, itemID int64, key string) error
	// TakeMeta reads and deletes a key in one transaction, so a deferred
	// lifecycle flag is consumed at most once
	TakeMeta(ctx context.Context, itemID int64, key string) (string, bool, error)

	// Settings operations
	GetSettings(ctx context.Context, contentType string) (models.Settings, error)
	SaveSettings(ctx context.Context, contentType string, settings models.Settings) error

	// Credential operations
	GetCredential(ctx context.Context, provider string) (*models.Credential, error)
	SaveCredential(ctx context.Context, credential *models.Credential) error
	DeleteCredential(ctx context.Context, provider string) error

	// Maintenance
	Close() error
	Migrate() error
}
