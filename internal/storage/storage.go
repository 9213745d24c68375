// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"imagedim/internal/models"
)

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

// DimensionByURL returns the cached record whose stored url matches exactly,
// or nil when no row exists.
func (s *Storage) DimensionByURL(ctx context.Context, url string) (*models.DimensionRecord, error) {
	const op = "storage.DimensionByURL"
	var rec models.DimensionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, upload_id, url, width, height, aspect_ratio, created_at, updated_at
		 FROM image_dimensions WHERE url = $1`,
		url).Scan(&rec.ID, &rec.UploadID, &rec.URL, &rec.Width, &rec.Height, &rec.AspectRatio,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

// DimensionsByURLs batch-loads cached records for the given urls, keyed by
// stored url. Missing urls are simply absent from the map.
func (s *Storage) DimensionsByURLs(ctx context.Context, urls []string) (map[string]*models.DimensionRecord, error) {
	const op = "storage.DimensionsByURLs"

	result := make(map[string]*models.DimensionRecord, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, upload_id, url, width, height, aspect_ratio, created_at, updated_at
		 FROM image_dimensions WHERE url = ANY($1)`,
		urls)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.DimensionRecord
		if err := rows.Scan(&rec.ID, &rec.UploadID, &rec.URL, &rec.Width, &rec.Height,
			&rec.AspectRatio, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result[rec.URL] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpsertDimension inserts or updates the record for rec.UploadID. The
// ON CONFLICT clause makes concurrent callers for the same upload converge
// on one row instead of erroring.
func (s *Storage) UpsertDimension(ctx context.Context, rec *models.DimensionRecord) (*models.DimensionRecord, error) {
	const op = "storage.UpsertDimension"

	if !rec.Valid() {
		return nil, fmt.Errorf("%s: invalid dimension record for upload %d", op, rec.UploadID)
	}

	var saved models.DimensionRecord
	err := s.pool.QueryRow(ctx,
		`INSERT INTO image_dimensions (upload_id, url, width, height, aspect_ratio, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (upload_id) DO UPDATE
		    SET url = EXCLUDED.url,
		        width = EXCLUDED.width,
		        height = EXCLUDED.height,
		        aspect_ratio = EXCLUDED.aspect_ratio,
		        updated_at = now()
		 RETURNING id, upload_id, url, width, height, aspect_ratio, created_at, updated_at`,
		rec.UploadID, rec.URL, rec.Width, rec.Height, rec.AspectRatio).
		Scan(&saved.ID, &saved.UploadID, &saved.URL, &saved.Width, &saved.Height,
			&saved.AspectRatio, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &saved, nil
}

func (s *Storage) UploadByID(ctx context.Context, id int64) (*models.Upload, error) {
	const op = "storage.UploadByID"
	return s.uploadQuery(ctx, op, `WHERE id = $1`, id)
}

func (s *Storage) UploadByURL(ctx context.Context, url string) (*models.Upload, error) {
	const op = "storage.UploadByURL"
	return s.uploadQuery(ctx, op, `WHERE url = $1`, url)
}

func (s *Storage) UploadBySHA1(ctx context.Context, sha1 string) (*models.Upload, error) {
	const op = "storage.UploadBySHA1"
	return s.uploadQuery(ctx, op, `WHERE sha1 = $1`, sha1)
}

func (s *Storage) uploadQuery(ctx context.Context, op, where string, arg any) (*models.Upload, error) {
	var u models.Upload
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, COALESCE(width, 0), COALESCE(height, 0), COALESCE(sha1, ''),
		        COALESCE(extension, ''), COALESCE(file_path, '')
		 FROM uploads `+where,
		arg).Scan(&u.ID, &u.URL, &u.Width, &u.Height, &u.SHA1, &u.Extension, &u.FilePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// OptimizedImageByURL returns the rendition with the given url, or nil.
func (s *Storage) OptimizedImageByURL(ctx context.Context, url string) (*models.OptimizedImage, error) {
	const op = "storage.OptimizedImageByURL"
	var img models.OptimizedImage
	err := s.pool.QueryRow(ctx,
		`SELECT upload_id, url, COALESCE(width, 0), COALESCE(height, 0)
		 FROM optimized_images WHERE url = $1`,
		url).Scan(&img.UploadID, &img.URL, &img.Width, &img.Height)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &img, nil
}

// PreferenceFor returns the stored push preference for one user/channel
// pair, or nil when the user never set one.
func (s *Storage) PreferenceFor(ctx context.Context, userID, channelID int64) (*models.ChatNotificationPreference, error) {
	const op = "storage.PreferenceFor"
	var p models.ChatNotificationPreference
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, chat_channel_id, push_enabled
		 FROM chat_notification_preferences
		 WHERE user_id = $1 AND chat_channel_id = $2`,
		userID, channelID).Scan(&p.UserID, &p.ChannelID, &p.PushEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// PreferencesForUser lists every stored preference for the user.
func (s *Storage) PreferencesForUser(ctx context.Context, userID int64) ([]models.ChatNotificationPreference, error) {
	const op = "storage.PreferencesForUser"

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, chat_channel_id, push_enabled
		 FROM chat_notification_preferences WHERE user_id = $1
		 ORDER BY chat_channel_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var prefs []models.ChatNotificationPreference
	for rows.Next() {
		var p models.ChatNotificationPreference
		if err := rows.Scan(&p.UserID, &p.ChannelID, &p.PushEnabled); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return prefs, nil
}

// SetPreference upserts the push toggle for one user/channel pair.
func (s *Storage) SetPreference(ctx context.Context, userID, channelID int64, enabled bool) (*models.ChatNotificationPreference, error) {
	const op = "storage.SetPreference"
	var p models.ChatNotificationPreference
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_notification_preferences (user_id, chat_channel_id, push_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (user_id, chat_channel_id) DO UPDATE
		    SET push_enabled = EXCLUDED.push_enabled, updated_at = now()
		 RETURNING user_id, chat_channel_id, push_enabled`,
		userID, channelID, enabled).Scan(&p.UserID, &p.ChannelID, &p.PushEnabled)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}
