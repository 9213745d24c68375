// internal/dimension/resolver.go
package dimension

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"imagedim/internal/models"
	"imagedim/internal/urlutil"
)

// Resolver answers "what size is the image behind this URL" with a chain of
// fallback strategies over the dimension cache, the optimized-rendition
// table and the uploads table. Read-only apart from write-through caching
// of newly discovered upload dimensions.
type Resolver struct {
	store Store
	log   *zap.Logger
}

func NewResolver(store Store, log *zap.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns the dimensions for url, or nil when no strategy matches.
// Store failures are logged and degrade to nil; resolution never breaks the
// caller's rendering path.
func (r *Resolver) Resolve(ctx context.Context, url string) *models.ResolvedDimension {
	dim, err := r.resolve(ctx, url)
	if err != nil {
		r.log.Warn("dimension resolution failed",
			zap.String("url", url),
			zap.Error(err))
		return nil
	}
	return dim
}

// DimensionForURL is the rendering extension point: like Resolve but an
// unresolved URL yields a null-dimension placeholder so downstream rendering
// always sees the same shape.
func (r *Resolver) DimensionForURL(ctx context.Context, url string) *models.ResolvedDimension {
	if dim := r.Resolve(ctx, url); dim != nil {
		return dim
	}
	return models.PlaceholderDimension(url)
}

func (r *Resolver) resolve(ctx context.Context, url string) (*models.ResolvedDimension, error) {
	const op = "dimension.resolve"

	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	rel := urlutil.ToRelative(url)

	// 1. Cached record, by exact url then by relative url.
	rec, err := r.store.DimensionByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec == nil && rel != url {
		if rec, err = r.store.DimensionByURL(ctx, rel); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if rec != nil {
		return models.NewResolvedDimension(url, rec.Width, rec.Height), nil
	}

	// 2. Optimized rendition. Never persisted: renditions have no stable id
	// to key a record by.
	opt, err := r.store.OptimizedImageByURL(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opt == nil && rel != url {
		if opt, err = r.store.OptimizedImageByURL(ctx, url); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if opt != nil && opt.Width > 0 && opt.Height > 0 {
		return models.NewResolvedDimension(url, opt.Width, opt.Height), nil
	}

	// 3. Content fingerprint, the only join key that survives resizing.
	if sha, ok := urlutil.ExtractSHA1(url); ok {
		up, err := r.store.UploadBySHA1(ctx, sha)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if up != nil {
			// An explicit size suffix names a rendition, which may have been
			// cropped; trust it over the original's aspect ratio and skip the
			// write-through (the suffix size is not the canonical size).
			if w, h, ok := urlutil.ExtractRequestedSize(url); ok {
				return models.NewResolvedDimension(url, w, h), nil
			}
			if up.Width > 0 && up.Height > 0 {
				r.cacheUpload(ctx, up)
				return models.NewResolvedDimension(url, up.Width, up.Height), nil
			}
		}
	}

	// 4. Upload matched directly by url.
	up, err := r.store.UploadByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if up == nil && rel != url {
		if up, err = r.store.UploadByURL(ctx, rel); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if up != nil && up.Width > 0 && up.Height > 0 {
		r.cacheUpload(ctx, up)
		return models.NewResolvedDimension(url, up.Width, up.Height), nil
	}

	return nil, nil
}

// cacheUpload write-through-caches a resolved upload. Persistence failure
// only costs the next lookup a recompute, so it degrades to a warning.
func (r *Resolver) cacheUpload(ctx context.Context, up *models.Upload) {
	if _, err := r.EnsureForUpload(ctx, up); err != nil {
		r.log.Warn("failed to cache upload dimensions",
			zap.Int64("upload_id", up.ID),
			zap.Error(err))
	}
}

// EnsureForUpload idempotently upserts the DimensionRecord for the upload.
// Returns (nil, nil) when the upload has no id or no known dimensions yet.
func (r *Resolver) EnsureForUpload(ctx context.Context, up *models.Upload) (*models.DimensionRecord, error) {
	const op = "dimension.EnsureForUpload"

	if up == nil || up.ID == 0 || up.Width <= 0 || up.Height <= 0 {
		return nil, nil
	}

	rec := &models.DimensionRecord{
		UploadID: up.ID,
		URL:      up.URL,
		Width:    up.Width,
		Height:   up.Height,
	}
	rec.RecalcAspectRatio()

	saved, err := r.store.UpsertDimension(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}
