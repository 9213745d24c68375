package dimension

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imagedim/internal/models"
)

const testSHA = "13b0809088bbce45ec9adac465f3a25c88b71057"

type fakeStore struct {
	recordsByURL    map[string]*models.DimensionRecord
	recordsByUpload map[int64]*models.DimensionRecord
	uploadsByURL    map[string]*models.Upload
	uploadsBySHA    map[string]*models.Upload
	optimizedByURL  map[string]*models.OptimizedImage

	upserts   int
	failWith  error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordsByURL:    map[string]*models.DimensionRecord{},
		recordsByUpload: map[int64]*models.DimensionRecord{},
		uploadsByURL:    map[string]*models.Upload{},
		uploadsBySHA:    map[string]*models.Upload{},
		optimizedByURL:  map[string]*models.OptimizedImage{},
	}
}

func (f *fakeStore) DimensionByURL(_ context.Context, url string) (*models.DimensionRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.recordsByURL[url], nil
}

func (f *fakeStore) DimensionsByURLs(_ context.Context, urls []string) (map[string]*models.DimensionRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := map[string]*models.DimensionRecord{}
	for _, u := range urls {
		if rec, ok := f.recordsByURL[u]; ok {
			out[u] = rec
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertDimension(_ context.Context, rec *models.DimensionRecord) (*models.DimensionRecord, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	if !rec.Valid() {
		return nil, errors.New("invalid dimension record")
	}
	f.upserts++
	saved := *rec
	if prev, ok := f.recordsByUpload[rec.UploadID]; ok {
		saved.ID = prev.ID
		delete(f.recordsByURL, prev.URL)
	} else {
		saved.ID = int64(len(f.recordsByUpload) + 1)
	}
	f.recordsByUpload[saved.UploadID] = &saved
	f.recordsByURL[saved.URL] = &saved
	return &saved, nil
}

func (f *fakeStore) UploadByURL(_ context.Context, url string) (*models.Upload, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.uploadsByURL[url], nil
}

func (f *fakeStore) UploadBySHA1(_ context.Context, sha1 string) (*models.Upload, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.uploadsBySHA[sha1], nil
}

func (f *fakeStore) OptimizedImageByURL(_ context.Context, url string) (*models.OptimizedImage, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.optimizedByURL[url], nil
}

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, zap.NewNop())
}

func TestResolveBlankURL(t *testing.T) {
	r := newTestResolver(newFakeStore())
	assert.Nil(t, r.Resolve(context.Background(), ""))
	assert.Nil(t, r.Resolve(context.Background(), "   "))
}

func TestResolveCachedRecord(t *testing.T) {
	store := newFakeStore()
	store.recordsByURL["/uploads/original/1X/"+testSHA+".jpg"] = &models.DimensionRecord{
		UploadID: 7, URL: "/uploads/original/1X/" + testSHA + ".jpg",
		Width: 640, Height: 480, AspectRatio: 640.0 / 480.0,
	}
	r := newTestResolver(store)

	requested := "https://cdn.example.com/uploads/original/1X/" + testSHA + ".jpg"
	dim := r.Resolve(context.Background(), requested)
	require.NotNil(t, dim)
	// echoes the requested spelling, not the stored one
	assert.Equal(t, requested, dim.URL)
	assert.Equal(t, 640, *dim.Width)
	assert.Equal(t, 480, *dim.Height)
}

func TestResolveCachedRecordWinsOverFingerprint(t *testing.T) {
	url := "/uploads/original/1X/" + testSHA + ".jpg"
	store := newFakeStore()
	store.recordsByURL[url] = &models.DimensionRecord{
		UploadID: 7, URL: url, Width: 640, Height: 480, AspectRatio: 640.0 / 480.0,
	}
	store.uploadsBySHA[testSHA] = &models.Upload{ID: 7, URL: url, Width: 1200, Height: 800, SHA1: testSHA}
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), url)
	require.NotNil(t, dim)
	assert.Equal(t, 640, *dim.Width)
	assert.Equal(t, 480, *dim.Height)
	assert.Zero(t, store.upserts)
}

func TestResolveOptimizedRendition(t *testing.T) {
	rel := "/uploads/optimized/1X/" + testSHA + "_2_690x388.jpg"
	store := newFakeStore()
	store.optimizedByURL[rel] = &models.OptimizedImage{UploadID: 7, URL: rel, Width: 690, Height: 388}
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), "https://cdn.example.com"+rel)
	require.NotNil(t, dim)
	assert.Equal(t, 690, *dim.Width)
	assert.Equal(t, 388, *dim.Height)
	assert.InDelta(t, 690.0/388.0, *dim.AspectRatio, 1e-9)
	// renditions are never written through to the record table
	assert.Zero(t, store.upserts)
}

func TestResolveFingerprintWithSizeSuffix(t *testing.T) {
	store := newFakeStore()
	store.uploadsBySHA[testSHA] = &models.Upload{
		ID: 7, URL: "/uploads/original/1X/" + testSHA + ".jpg",
		Width: 1200, Height: 800, SHA1: testSHA,
	}
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), "/uploads/optimized/1X/"+testSHA+"_2_300x400.jpg")
	require.NotNil(t, dim)
	// the suffix wins over the original 1200x800
	assert.Equal(t, 300, *dim.Width)
	assert.Equal(t, 400, *dim.Height)
	assert.InDelta(t, 0.75, *dim.AspectRatio, 1e-9)
	assert.Zero(t, store.upserts)
}

func TestResolveFingerprintWithoutSuffixPersists(t *testing.T) {
	store := newFakeStore()
	store.uploadsBySHA[testSHA] = &models.Upload{
		ID: 7, URL: "/uploads/original/1X/" + testSHA + ".jpg",
		Width: 1200, Height: 800, SHA1: testSHA,
	}
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), "//cdn.example.com/uploads/original/1X/"+testSHA+".png")
	require.NotNil(t, dim)
	assert.Equal(t, 1200, *dim.Width)
	assert.Equal(t, 800, *dim.Height)
	assert.InDelta(t, 1.5, *dim.AspectRatio, 1e-9)

	require.Equal(t, 1, store.upserts)
	rec := store.recordsByUpload[7]
	require.NotNil(t, rec)
	assert.Equal(t, 1200, rec.Width)
	assert.Equal(t, 800, rec.Height)
	assert.InDelta(t, 1.5, rec.AspectRatio, 1e-9)
}

func TestResolveUploadByURLFallback(t *testing.T) {
	url := "/uploads/default/original/2X/plain-name.png"
	store := newFakeStore()
	store.uploadsByURL[url] = &models.Upload{ID: 9, URL: url, Width: 100, Height: 50}
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), "https://forum.example.com"+url)
	require.NotNil(t, dim)
	assert.Equal(t, 100, *dim.Width)
	assert.Equal(t, 50, *dim.Height)
	assert.Equal(t, 1, store.upserts)
}

func TestResolveNothingMatches(t *testing.T) {
	r := newTestResolver(newFakeStore())
	assert.Nil(t, r.Resolve(context.Background(), "/uploads/unknown.png"))
}

func TestResolveStoreFailureDegradesToAbsent(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	r := newTestResolver(store)
	assert.Nil(t, r.Resolve(context.Background(), "/uploads/a.png"))
}

func TestResolvePersistenceFailureStillReturnsDimensions(t *testing.T) {
	store := newFakeStore()
	store.uploadsBySHA[testSHA] = &models.Upload{
		ID: 7, URL: "/uploads/original/1X/" + testSHA + ".jpg",
		Width: 1200, Height: 800, SHA1: testSHA,
	}
	store.upsertErr = errors.New("unique constraint hiccup")
	r := newTestResolver(store)

	dim := r.Resolve(context.Background(), "/uploads/original/1X/"+testSHA+".jpg")
	require.NotNil(t, dim)
	assert.Equal(t, 1200, *dim.Width)
}

func TestDimensionForURLPlaceholder(t *testing.T) {
	r := newTestResolver(newFakeStore())
	dim := r.DimensionForURL(context.Background(), "/uploads/unknown.png")
	require.NotNil(t, dim)
	assert.Equal(t, "/uploads/unknown.png", dim.URL)
	assert.Nil(t, dim.Width)
	assert.Nil(t, dim.Height)
	assert.Nil(t, dim.AspectRatio)
}

func TestEnsureForUploadIdempotent(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store)
	up := &models.Upload{ID: 7, URL: "/uploads/a.jpg", Width: 640, Height: 480}

	first, err := r.EnsureForUpload(context.Background(), up)
	require.NoError(t, err)
	require.NotNil(t, first)

	up.Width, up.Height = 800, 600
	second, err := r.EnsureForUpload(context.Background(), up)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Len(t, store.recordsByUpload, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 800, second.Width)
	assert.Equal(t, 600, second.Height)
	assert.InDelta(t, 800.0/600.0, second.AspectRatio, 1e-9)
}

func TestEnsureForUploadMissingData(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store)

	rec, err := r.EnsureForUpload(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = r.EnsureForUpload(context.Background(), &models.Upload{URL: "/a.jpg", Width: 1, Height: 1})
	assert.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = r.EnsureForUpload(context.Background(), &models.Upload{ID: 3, URL: "/a.jpg"})
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, store.upserts)
}
