package course

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var (
			cs  []Course
			err error
		)

		if claims.IsAdmin(ctx) {
			cs, err = FetchAll(ctx, db)
		} else {
			cs, err = FetchPublished(ctx, db)
		}
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		cs, err := FetchOwned(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !c.Published && !claims.IsAdmin(ctx) {
			return weberr.NotFound(errors.New("course is not published"))
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cn CourseNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		c := Course{
			ID:          validate.GenerateID(),
			Name:        cn.Name,
			Description: cn.Description,
			ImageURL:    cn.ImageURL,
			Price:       cn.Price,
			Published:   cn.Published,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		if err := Create(ctx, db, c); err != nil {
			return err
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		var cu CourseUp
		if err := web.Decode(w, r, &cu); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(cu); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if cu.Name != nil {
			c.Name = *cu.Name
		}
		if cu.Description != nil {
			c.Description = *cu.Description
		}
		if cu.Price != nil {
			c.Price = *cu.Price
		}
		if cu.Published != nil {
			c.Published = *cu.Published
		}
		if cu.ImageURL != nil {
			c.ImageURL = *cu.ImageURL
		}
		c.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, c); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}
