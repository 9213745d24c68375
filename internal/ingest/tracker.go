// internal/ingest/tracker.go
package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"imagedim/internal/dimension"
	"imagedim/internal/models"
)

var allowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
}

// ImageExtension reports whether uploads with this extension get dimension
// tracking.
func ImageExtension(ext string) bool {
	_, ok := allowedExtensions[ext]
	return ok
}

// Tracker eagerly populates the dimension cache when the host platform
// announces a new upload. Best effort: a failed attempt is logged and the
// lazy resolution path picks the upload up later.
type Tracker struct {
	resolver    *dimension.Resolver
	storagePath string
	enabled     bool
	log         *zap.Logger
}

func NewTracker(resolver *dimension.Resolver, storagePath string, enabled bool, log *zap.Logger) *Tracker {
	return &Tracker{resolver: resolver, storagePath: storagePath, enabled: enabled, log: log}
}

// HandleUploadCreated is the ingestion hook. Returns true when a dimension
// record was persisted.
func (t *Tracker) HandleUploadCreated(ctx context.Context, up *models.Upload) bool {
	if !t.enabled || up == nil || up.ID == 0 {
		return false
	}
	if !ImageExtension(up.Extension) {
		return false
	}

	start := time.Now()

	if up.Width <= 0 || up.Height <= 0 {
		t.probeDimensions(up)
	}

	rec, err := t.resolver.EnsureForUpload(ctx, up)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		t.log.Warn("failed to track dimensions for upload",
			zap.Int64("upload_id", up.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return false
	case rec == nil:
		// Dimensions not extracted yet; the platform's retry job re-delivers
		// the event once they are.
		t.log.Info("upload has no dimensions yet, skipping",
			zap.Int64("upload_id", up.ID))
		return false
	default:
		t.log.Info("tracked dimensions for upload",
			zap.Int64("upload_id", up.ID),
			zap.Int("width", rec.Width),
			zap.Int("height", rec.Height),
			zap.Duration("elapsed", elapsed))
		return true
	}
}

// probeDimensions fills in width/height by decoding the local file when the
// platform has not extracted them yet and the file is reachable.
func (t *Tracker) probeDimensions(up *models.Upload) {
	if t.storagePath == "" || up.FilePath == "" {
		return
	}
	img, err := imaging.Open(filepath.Join(t.storagePath, up.FilePath))
	if err != nil {
		t.log.Debug("dimension probe failed",
			zap.Int64("upload_id", up.ID),
			zap.Error(err))
		return
	}
	bounds := img.Bounds()
	up.Width = bounds.Dx()
	up.Height = bounds.Dy()
}
