package ingest

import (
	"context"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imagedim/internal/dimension"
	"imagedim/internal/models"
)

type upsertOnlyStore struct {
	records map[int64]*models.DimensionRecord
}

func (s *upsertOnlyStore) DimensionByURL(context.Context, string) (*models.DimensionRecord, error) {
	return nil, nil
}

func (s *upsertOnlyStore) DimensionsByURLs(context.Context, []string) (map[string]*models.DimensionRecord, error) {
	return map[string]*models.DimensionRecord{}, nil
}

func (s *upsertOnlyStore) UpsertDimension(_ context.Context, rec *models.DimensionRecord) (*models.DimensionRecord, error) {
	if s.records == nil {
		s.records = map[int64]*models.DimensionRecord{}
	}
	saved := *rec
	s.records[rec.UploadID] = &saved
	return &saved, nil
}

func (s *upsertOnlyStore) UploadByURL(context.Context, string) (*models.Upload, error) {
	return nil, nil
}

func (s *upsertOnlyStore) UploadBySHA1(context.Context, string) (*models.Upload, error) {
	return nil, nil
}

func (s *upsertOnlyStore) OptimizedImageByURL(context.Context, string) (*models.OptimizedImage, error) {
	return nil, nil
}

func newTestTracker(store dimension.Store, storagePath string, enabled bool) *Tracker {
	resolver := dimension.NewResolver(store, zap.NewNop())
	return NewTracker(resolver, storagePath, enabled, zap.NewNop())
}

func TestImageExtension(t *testing.T) {
	assert.True(t, ImageExtension("jpg"))
	assert.True(t, ImageExtension("webp"))
	assert.False(t, ImageExtension("pdf"))
	assert.False(t, ImageExtension(""))
}

func TestHandleUploadCreated(t *testing.T) {
	store := &upsertOnlyStore{}
	tracker := newTestTracker(store, "", true)

	up := &models.Upload{ID: 42, URL: "/uploads/a.jpg", Width: 640, Height: 480, Extension: "jpg"}
	assert.True(t, tracker.HandleUploadCreated(context.Background(), up))

	rec := store.records[42]
	require.NotNil(t, rec)
	assert.Equal(t, 640, rec.Width)
	assert.Equal(t, 480, rec.Height)
	assert.InDelta(t, 640.0/480.0, rec.AspectRatio, 1e-9)
}

func TestHandleUploadCreatedSkips(t *testing.T) {
	store := &upsertOnlyStore{}
	tracker := newTestTracker(store, "", true)
	ctx := context.Background()

	assert.False(t, tracker.HandleUploadCreated(ctx, nil))
	assert.False(t, tracker.HandleUploadCreated(ctx, &models.Upload{URL: "/a.jpg", Width: 1, Height: 1, Extension: "jpg"}))
	assert.False(t, tracker.HandleUploadCreated(ctx, &models.Upload{ID: 1, URL: "/a.pdf", Width: 1, Height: 1, Extension: "pdf"}))
	assert.Empty(t, store.records)

	disabled := newTestTracker(store, "", false)
	assert.False(t, disabled.HandleUploadCreated(ctx, &models.Upload{ID: 2, URL: "/a.jpg", Width: 1, Height: 1, Extension: "jpg"}))
	assert.Empty(t, store.records)
}

func TestHandleUploadCreatedProbesLocalFile(t *testing.T) {
	dir := t.TempDir()
	img := imaging.New(30, 20, image.Transparent.C)
	require.NoError(t, imaging.Save(img, dir+"/probe.png"))

	store := &upsertOnlyStore{}
	tracker := newTestTracker(store, dir, true)

	up := &models.Upload{ID: 5, URL: "/uploads/probe.png", Extension: "png", FilePath: "probe.png"}
	assert.True(t, tracker.HandleUploadCreated(context.Background(), up))

	rec := store.records[5]
	require.NotNil(t, rec)
	assert.Equal(t, 30, rec.Width)
	assert.Equal(t, 20, rec.Height)
}

func TestHandleUploadCreatedNoDimensionsNoFile(t *testing.T) {
	store := &upsertOnlyStore{}
	tracker := newTestTracker(store, t.TempDir(), true)

	up := &models.Upload{ID: 6, URL: "/uploads/gone.png", Extension: "png", FilePath: "gone.png"}
	assert.False(t, tracker.HandleUploadCreated(context.Background(), up))
	assert.Empty(t, store.records)
}
