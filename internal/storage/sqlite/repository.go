package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.ContentItem{},
		&models.MetaEntry{},
		&models.SettingsRecord{},
		&models.Credential{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Content item operations

func (r *Repository) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error) {
	var item models.ContentItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *Repository) UpdateContentItem(ctx context.Context, item *models.ContentItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *Repository) ListPublishedItems(ctx context.Context, publishedAfter time.Time) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	err := r.db.WithContext(ctx).
		Where("published_at > ?", publishedAfter).
		Order("published_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Meta operations

func (r *Repository) GetMeta(ctx context.Context, itemID int64, key string) (string, bool, error) {
	var entry models.MetaEntry
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND key = ?", itemID, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Value, true, nil
}

func (r *Repository) SaveMeta(ctx context.Context, itemID int64, key, value string) error {
	entry := models.MetaEntry{
		ItemID: itemID,
		Key:    key,
		Value:  value,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
}

func (r *Repository) DeleteMeta(ctx context.Context, itemID int64, key string) error {
	return r.db.WithContext(ctx).
		Where("item_id = ? AND key = ?", itemID, key).
		Delete(&models.MetaEntry{}).Error
}

func (r *Repository) TakeMeta(ctx context.Context, itemID int64, key string) (string, bool, error) {
	var value string
	found := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.MetaEntry
		err := tx.Where("item_id = ? AND key = ?", itemID, key).First(&entry).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		value = entry.Value
		found = true
		return tx.Delete(&entry).Error
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Settings operations

func (r *Repository) GetSettings(ctx context.Context, contentType string) (models.Settings, error) {
	var record models.SettingsRecord
	err := r.db.WithContext(ctx).
		Where("content_type = ?", contentType).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var settings models.Settings
	if err := json.Unmarshal([]byte(record.Payload), &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for %s: %w", contentType, err)
	}
	return settings, nil
}

func (r *Repository) SaveSettings(ctx context.Context, contentType string, settings models.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings for %s: %w", contentType, err)
	}

	record := models.SettingsRecord{
		ContentType: contentType,
		Payload:     string(payload),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&record).Error
}

// Credential operations

func (r *Repository) GetCredential(ctx context.Context, provider string) (*models.Credential, error) {
	var credential models.Credential
	err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &credential, nil
}

func (r *Repository) SaveCredential(ctx context.Context, credential *models.Credential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expiry", "updated_at"}),
		}).
		Create(credential).Error
}

func (r *Repository) DeleteCredential(ctx context.Context, provider string) error {
	return r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Delete(&models.Credential{}).Error
}
