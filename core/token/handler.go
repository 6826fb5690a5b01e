package token

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coursehub/coursehub/api/background"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/database"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// HandleToken issues an activation or recovery token and emails it in the
// background. The response is 202 regardless of whether the email exists, so
// the endpoint cannot be used to enumerate accounts.
func HandleToken(db *sqlx.DB, mailer Mailer, timeout time.Duration, bg *background.Background) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var tr struct {
			Email string `json:"email" validate:"required,email"`
			Scope string `json:"scope" validate:"required,oneof=activation recovery"`
		}

		if err := web.Decode(w, r, &tr); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(tr); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		usr, err := user.FetchByEmail(ctx, db, tr.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return web.Respond(ctx, w, nil, http.StatusAccepted)
			}
			return err
		}

		plain, tok := Generate(usr.ID, tr.Scope, timeout)
		if err := Create(ctx, db, tok); err != nil {
			return err
		}

		bg.Run(func() error {
			if tr.Scope == ScopeActivation {
				return mailer.SendActivation(usr.Email, plain, timeout.String())
			}
			return mailer.SendRecovery(usr.Email, plain)
		})

		return web.Respond(ctx, w, nil, http.StatusAccepted)
	}
}

func HandleActivation(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var ar struct {
			Token string `json:"token" validate:"required,len=26"`
		}

		if err := web.Decode(w, r, &ar); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(ar); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		tok, err := Fetch(ctx, db, HashOf(ar.Token), ScopeActivation)
		if err != nil || tok.Expiry.Before(time.Now().UTC()) {
			return weberr.NewError(errors.New("invalid or expired token"), "invalid or expired token", http.StatusUnprocessableEntity)
		}

		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			if err := user.Activate(ctx, tx, tok.UserID); err != nil {
				return err
			}
			return DeleteByUser(ctx, tx, tok.UserID, ScopeActivation)
		})
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleRecovery(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var rr struct {
			Token           string `json:"token" validate:"required,len=26"`
			Password        string `json:"password" validate:"required,min=8,max=72"`
			PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
		}

		if err := web.Decode(w, r, &rr); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(rr); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		tok, err := Fetch(ctx, db, HashOf(rr.Token), ScopeRecovery)
		if err != nil || tok.Expiry.Before(time.Now().UTC()) {
			return weberr.NewError(errors.New("invalid or expired token"), "invalid or expired token", http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(rr.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			if err := user.UpdatePassword(ctx, tx, tok.UserID, hash); err != nil {
				return err
			}
			return DeleteByUser(ctx, tx, tok.UserID, ScopeRecovery)
		})
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
