package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

func HandleSignup(db *sqlx.DB, session *scs.SessionManager, activationRequired bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var us user.UserSignup
		if err := web.Decode(w, r, &us); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(us); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(us.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		usr := user.User{
			ID:           validate.GenerateID(),
			Name:         us.Name,
			Email:        us.Email,
			Role:         claims.RoleUser,
			PasswordHash: hash,
			Active:       !activationRequired,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := user.Create(ctx, db, usr); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				return weberr.Conflict(err)
			}
			return err
		}

		if usr.Active {
			if err := login(ctx, session, usr.ID, usr.Role); err != nil {
				return err
			}
		}

		return web.Respond(ctx, w, usr, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var lg struct {
			Email    string `json:"email" validate:"required,email"`
			Password string `json:"password" validate:"required"`
		}

		if err := web.Decode(w, r, &lg); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(lg); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		usr, err := user.FetchByEmail(ctx, db, lg.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return weberr.NotAuthorized(errors.New("invalid credentials"))
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte(lg.Password)); err != nil {
			return weberr.NotAuthorized(errors.New("invalid credentials"))
		}

		if !usr.Active {
			return weberr.NotAuthorized(errors.New("account is not activated"))
		}

		if err := login(ctx, session, usr.ID, usr.Role); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
