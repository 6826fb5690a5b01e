package user

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
	"golang.org/x/crypto/bcrypt"
)

func HandleShowCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		usr, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if !claims.IsAdmin(ctx) && !claims.IsUser(ctx, id) {
			return weberr.NotAuthorized(errors.New("not allowed to read other users"))
		}

		usr, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if !claims.IsAdmin(ctx) {
			return weberr.NotAuthorized(errors.New("only admins can create users"))
		}

		var un UserNew
		if err := web.Decode(w, r, &un); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(un); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(un.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		usr := User{
			ID:           validate.GenerateID(),
			Name:         un.Name,
			Email:        un.Email,
			Role:         un.Role,
			PasswordHash: hash,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := Create(ctx, db, usr); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return weberr.Conflict(err)
			}
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusCreated)
	}
}
