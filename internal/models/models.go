// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// DimensionRecord is the cached width/height/aspect-ratio for one upload.
// One row per upload, keyed by the unique upload_id.
type DimensionRecord struct {
	ID          int64     `db:"id"`
	UploadID    int64     `db:"upload_id"`
	URL         string    `db:"url"`
	Width       int       `db:"width"`
	Height      int       `db:"height"`
	AspectRatio float64   `db:"aspect_ratio"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// RecalcAspectRatio recomputes aspect_ratio from the current width and
// height. Must be called before persisting whenever either changes.
func (d *DimensionRecord) RecalcAspectRatio() {
	if d.Width > 0 && d.Height > 0 {
		d.AspectRatio = float64(d.Width) / float64(d.Height)
	}
}

// Valid reports whether the record satisfies the storage invariants.
func (d DimensionRecord) Valid() bool {
	return d.UploadID > 0 && d.URL != "" && d.Width > 0 && d.Height > 0 && d.AspectRatio > 0
}

// ResolvedDimension is the transient shape returned to callers. URL always
// echoes the originally requested URL so batch results join back by the
// caller's own keys. Width/Height/AspectRatio are pointers so the rendering
// placeholder (all nil) keeps a stable JSON shape.
type ResolvedDimension struct {
	URL         string   `json:"url"`
	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	AspectRatio *float64 `json:"aspectRatio"`
}

// NewResolvedDimension builds a fully populated result for the given
// requested URL.
func NewResolvedDimension(url string, width, height int) *ResolvedDimension {
	ratio := float64(width) / float64(height)
	return &ResolvedDimension{
		URL:         url,
		Width:       &width,
		Height:      &height,
		AspectRatio: &ratio,
	}
}

// PlaceholderDimension is the null-dimension shape handed to rendering code
// when a URL cannot be resolved.
func PlaceholderDimension(url string) *ResolvedDimension {
	return &ResolvedDimension{URL: url}
}

// Upload is an originally uploaded asset. Width/Height may be zero when the
// platform has not extracted them yet. SHA1 is the hex content fingerprint
// embedded in content-addressed URLs.
type Upload struct {
	ID        int64  `db:"id"`
	URL       string `db:"url"`
	Width     int    `db:"width"`
	Height    int    `db:"height"`
	SHA1      string `db:"sha1"`
	Extension string `db:"extension"`
	FilePath  string `db:"file_path"`
}

// OptimizedImage is a derived/resized rendition of an upload, identified
// only by URL. Renditions carry no fingerprint and no stable id of their
// own.
type OptimizedImage struct {
	UploadID int64  `db:"upload_id"`
	URL      string `db:"url"`
	Width    int    `db:"width"`
	Height   int    `db:"height"`
}

// ChatNotificationPreference is the per-user per-channel push toggle.
// Absence of a row means push is enabled.
type ChatNotificationPreference struct {
	UserID      int64 `db:"user_id"`
	ChannelID   int64 `db:"chat_channel_id"`
	PushEnabled bool  `db:"push_enabled"`
}

// UploadCreatedEvent is the message published by the host platform when a
// new upload is persisted.
type UploadCreatedEvent struct {
	EventID  uuid.UUID `json:"event_id"`
	UploadID int64     `json:"upload_id"`
}
