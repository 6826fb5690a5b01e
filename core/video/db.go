package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("video not found")

func Create(ctx context.Context, db sqlx.ExtContext, v Video) error {
	const q = `
	INSERT INTO videos (video_id, course_id, index, name, description, free, url, image_url, status, upload_key, created_at, updated_at)
	VALUES (:video_id, :course_id, :index, :name, :description, :free, :url, :image_url, :status, :upload_key, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, v); err != nil {
		return fmt.Errorf("inserting video: %w", err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, v Video) error {
	const q = `
	UPDATE videos SET
		course_id = :course_id,
		index = :index,
		name = :name,
		description = :description,
		free = :free,
		url = :url,
		image_url = :image_url,
		status = :status,
		upload_key = :upload_key,
		updated_at = :updated_at,
		version = version + 1
	WHERE video_id = :video_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, db, q, v)
	if err != nil {
		return fmt.Errorf("updating video[%s]: %w", v.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Video, error) {
	const q = `SELECT * FROM videos WHERE video_id = $1`

	var v Video
	if err := sqlx.GetContext(ctx, db, &v, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Video{}, ErrNotFound
		}
		return Video{}, fmt.Errorf("selecting video[%s]: %w", id, err)
	}

	return v, nil
}

func FetchByUploadKey(ctx context.Context, db sqlx.ExtContext, key string) (Video, error) {
	const q = `SELECT * FROM videos WHERE upload_key = $1`

	var v Video
	if err := sqlx.GetContext(ctx, db, &v, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Video{}, ErrNotFound
		}
		return Video{}, fmt.Errorf("selecting video by upload key: %w", err)
	}

	return v, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Video, error) {
	const q = `SELECT * FROM videos ORDER BY course_id, index`

	vs := []Video{}
	if err := sqlx.SelectContext(ctx, db, &vs, q); err != nil {
		return nil, fmt.Errorf("selecting videos: %w", err)
	}

	return vs, nil
}

func FetchByCourse(ctx context.Context, db sqlx.ExtContext, courseID string) ([]Video, error) {
	const q = `SELECT * FROM videos WHERE course_id = $1 ORDER BY index`

	vs := []Video{}
	if err := sqlx.SelectContext(ctx, db, &vs, q, courseID); err != nil {
		return nil, fmt.Errorf("selecting videos for course[%s]: %w", courseID, err)
	}

	return vs, nil
}

func UpsertProgress(ctx context.Context, db sqlx.ExtContext, p Progress) error {
	const q = `
	INSERT INTO videos_progress (video_id, user_id, progress, created_at, updated_at)
	VALUES (:video_id, :user_id, :progress, :created_at, :updated_at)
	ON CONFLICT (video_id, user_id) DO UPDATE SET
		progress = EXCLUDED.progress,
		updated_at = EXCLUDED.updated_at`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("upserting progress: %w", err)
	}

	return nil
}

func FetchProgressByCourse(ctx context.Context, db sqlx.ExtContext, userID string, courseID string) ([]Progress, error) {
	const q = `
	SELECT p.* FROM videos_progress AS p
	JOIN videos AS v ON v.video_id = p.video_id
	WHERE p.user_id = $1 AND v.course_id = $2`

	ps := []Progress{}
	if err := sqlx.SelectContext(ctx, db, &ps, q, userID, courseID); err != nil {
		return nil, fmt.Errorf("selecting progress for user[%s] course[%s]: %w", userID, courseID, err)
	}

	return ps, nil
}

// MarkReady flips an uploading video to ready, recording the playback URL.
// Conditional on the current status so replayed callbacks are no-ops.
func MarkReady(ctx context.Context, db sqlx.ExtContext, id string, url string) (bool, error) {
	const q = `
	UPDATE videos SET
		url = $2,
		status = $3,
		updated_at = $4,
		version = version + 1
	WHERE video_id = $1 AND status = $5`

	res, err := db.ExecContext(ctx, q, id, url, Ready, time.Now().UTC(), Uploading)
	if err != nil {
		return false, fmt.Errorf("marking video[%s] ready: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
