// internal/dimension/store.go
package dimension

import (
	"context"
	"time"

	"imagedim/internal/models"
)

// Store is the persistence surface the resolver needs: the dimension cache
// table plus read access to the platform's uploads and optimized renditions.
// *storage.Storage implements it.
type Store interface {
	DimensionByURL(ctx context.Context, url string) (*models.DimensionRecord, error)
	DimensionsByURLs(ctx context.Context, urls []string) (map[string]*models.DimensionRecord, error)
	UpsertDimension(ctx context.Context, rec *models.DimensionRecord) (*models.DimensionRecord, error)
	UploadByURL(ctx context.Context, url string) (*models.Upload, error)
	UploadBySHA1(ctx context.Context, sha1 string) (*models.Upload, error)
	OptimizedImageByURL(ctx context.Context, url string) (*models.OptimizedImage, error)
}

// Cache is the shared short-TTL cache backing bulk lookups. Get reports a
// miss with ok=false; errors are degradable (callers recompute).
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}
