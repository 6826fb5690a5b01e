package discount

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/database"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ds, err := FetchAll(ctx, db)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ds, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		d, err := FetchByCode(ctx, db, web.Param(r, "code"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, d, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var dn DiscountNew
		if err := web.Decode(w, r, &dn); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(dn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		d := Discount{
			ID:             validate.GenerateID(),
			Code:           dn.Code,
			Percent:        dn.Percent,
			Amount:         dn.Amount,
			Active:         dn.Active,
			StartsAt:       dn.StartsAt.UTC(),
			EndsAt:         dn.EndsAt.UTC(),
			MaxUses:        dn.MaxUses,
			MaxUsesPerUser: dn.MaxUsesPerUser,
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
		}

		if err := Create(ctx, db, d); err != nil {
			if database.IsUniqueViolation(err) {
				return weberr.Conflict(errors.New("discount code already exists"))
			}
			return err
		}

		return web.Respond(ctx, w, d, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var du DiscountUp
		if err := web.Decode(w, r, &du); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(du); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		d, err := FetchByCode(ctx, db, web.Param(r, "code"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if du.Percent != nil {
			d.Percent = *du.Percent
		}
		if du.Amount != nil {
			d.Amount = *du.Amount
		}
		if du.Active != nil {
			d.Active = *du.Active
		}
		if du.StartsAt != nil {
			d.StartsAt = du.StartsAt.UTC()
		}
		if du.EndsAt != nil {
			d.EndsAt = du.EndsAt.UTC()
		}
		if du.MaxUses != nil {
			d.MaxUses = *du.MaxUses
		}
		if du.MaxUsesPerUser != nil {
			d.MaxUsesPerUser = *du.MaxUsesPerUser
		}
		d.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, d); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, d, http.StatusOK)
	}
}
