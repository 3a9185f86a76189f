package models

import (
	"time"
)

// ContentItem is a publishable unit of content (post, page or custom type).
// It is a read-only snapshot taken at dispatch time; the content store owns it.
type ContentItem struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Type        string    `gorm:"index;default:'post'" json:"type"`
	TypeLabel   string    `json:"type_label"` // Plural display label, e.g. "Posts"
	AuthorID    int64     `gorm:"index" json:"author_id"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	AuthorURL   string    `json:"author_url"`
	Title       string    `json:"title"`
	Excerpt     string    `gorm:"type:text" json:"excerpt"`
	Content     string    `gorm:"type:text" json:"content"`
	Permalink   string    `json:"permalink"`
	PublishedAt time.Time `json:"published_at"`

	// Featured image variants; empty URLs mean no featured image
	ImageURL          string `json:"image_url"`
	ImageThumbnailURL string `json:"image_thumbnail_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasFeaturedImage returns true if the item carries a featured image
func (c *ContentItem) HasFeaturedImage() bool {
	return c.ImageURL != ""
}

// SingularTypeLabel returns a display label for a single item of this type
func (c *ContentItem) SingularTypeLabel() string {
	if c.TypeLabel != "" {
		return c.TypeLabel
	}
	return c.Type
}

// MetaEntry is a per-item key/value record. Deferred lifecycle flags, the
// last-sent timestamp, success/error indicators and the dispatch log all live here.
type MetaEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ItemID    int64     `gorm:"uniqueIndex:idx_item_meta;not null" json:"item_id"`
	Key       string    `gorm:"uniqueIndex:idx_item_meta;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
