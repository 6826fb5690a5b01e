package video

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/enrollment"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		vs, err := FetchAll(ctx, db)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, vs, http.StatusOK)
	}
}

func HandleListByCourse(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		vs, err := FetchByCourse(ctx, db, courseID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, vs, http.StatusOK)
	}
}

func HandleListProgressByCourse(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ps, err := FetchProgressByCourse(ctx, db, clm.UserID, courseID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		v, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

// HandleShowFree returns the playback URL of a free video.
func HandleShowFree(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		v, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !v.Free {
			return weberr.NotAuthorized(errors.New("video is not free"))
		}

		return web.Respond(ctx, w, struct {
			URL string `json:"url"`
		}{v.URL}, http.StatusOK)
	}
}

// HandleShowFull returns the playback URL for enrolled users.
func HandleShowFull(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		v, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !claims.IsAdmin(ctx) {
			owned, err := enrollment.Exists(ctx, db, clm.UserID, v.CourseID)
			if err != nil {
				return err
			}
			if !owned {
				return weberr.NotAuthorized(errors.New("course not owned"))
			}
		}

		return web.Respond(ctx, w, struct {
			URL string `json:"url"`
		}{v.URL}, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var vn VideoNew
		if err := web.Decode(w, r, &vn); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(vn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		status := Uploading
		if vn.URL != "" {
			status = Ready
		}

		now := time.Now().UTC()
		v := Video{
			ID:          validate.GenerateID(),
			CourseID:    vn.CourseID,
			Index:       vn.Index,
			Name:        vn.Name,
			Description: vn.Description,
			Free:        vn.Free,
			URL:         vn.URL,
			ImageURL:    vn.ImageURL,
			Status:      status,
			UploadKey:   vn.UploadKey,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		if err := Create(ctx, db, v); err != nil {
			return err
		}

		return web.Respond(ctx, w, v, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		var vu VideoUp
		if err := web.Decode(w, r, &vu); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(vu); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		v, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if vu.CourseID != nil {
			v.CourseID = *vu.CourseID
		}
		if vu.Index != nil {
			v.Index = *vu.Index
		}
		if vu.Name != nil {
			v.Name = *vu.Name
		}
		if vu.Description != nil {
			v.Description = *vu.Description
		}
		if vu.Free != nil {
			v.Free = *vu.Free
		}
		if vu.URL != nil {
			v.URL = *vu.URL
		}
		if vu.ImageURL != nil {
			v.ImageURL = *vu.ImageURL
		}
		v.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, v); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

func HandleUpdateProgress(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var pu ProgressUp
		if err := web.Decode(w, r, &pu); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(pu); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		p := Progress{
			VideoID:   id,
			UserID:    clm.UserID,
			Progress:  pu.Progress,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := UpsertProgress(ctx, db, p); err != nil {
			return err
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleAssetReady is the video platform callback fired when processing of an
// uploaded asset finishes. It flips the lesson to ready and removes the
// staged upload. Replayed callbacks are acknowledged without side effects.
func HandleAssetReady(db *sqlx.DB, uploadDir string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var ev struct {
			UploadKey string `json:"uploadKey" validate:"required"`
			URL       string `json:"url" validate:"required,url"`
		}

		if err := web.Decode(w, r, &ev); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(ev); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		v, err := FetchByUploadKey(ctx, db, ev.UploadKey)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		flipped, err := MarkReady(ctx, db, v.ID, ev.URL)
		if err != nil {
			return err
		}

		if flipped {
			staged := filepath.Join(uploadDir, filepath.Base(ev.UploadKey))
			if err := os.Remove(staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing staged upload[%s]: %w", staged, err)
			}
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
