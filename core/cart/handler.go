package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/course"
	"github.com/coursehub/coursehub/core/discount"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
)

// load assembles the cart with items, the resolved discount, and totals. A
// discount that no longer resolves is kept on the cart but contributes no
// adjustment; checkout re-validates it anyway.
func load(ctx context.Context, db *sqlx.DB, userID string) (Cart, error) {
	c, err := Fetch(ctx, db, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Cart{}, err
		}
		c = Cart{UserID: userID}
	}

	c.Items, err = FetchItems(ctx, db, userID)
	if err != nil {
		return Cart{}, err
	}

	var d *discount.Discount
	if c.DiscountCode != nil {
		if res, err := discount.Resolve(ctx, db, *c.DiscountCode, userID); err == nil {
			d = &res
		}
	}

	c.Subtotal, c.Discount, c.Total = Totals(c.Items, d)
	return c, nil
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		c, err := load(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleCreateItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		crs, err := course.Fetch(ctx, db, in.CourseID)
		if err != nil || !crs.Published {
			e := errors.New("course is not available for purchase")
			return weberr.Unprocessable(e, e.Error())
		}

		if err := upsert(ctx, db, clm.UserID); err != nil {
			return err
		}

		now := time.Now().UTC()
		it := Item{
			UserID:    clm.UserID,
			CourseID:  crs.ID,
			Price:     crs.Price,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := CreateItem(ctx, db, it); err != nil {
			if errors.Is(err, ErrAlreadyInCart) {
				return weberr.Conflict(err)
			}
			return err
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if err := DeleteItem(ctx, db, clm.UserID, courseID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if err := Delete(ctx, db, clm.UserID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleApplyDiscount(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var da DiscountApply
		if err := web.Decode(w, r, &da); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(da); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if _, err := discount.Resolve(ctx, db, da.Code, clm.UserID); err != nil {
			switch {
			case errors.Is(err, discount.ErrNotFound):
				return weberr.NotFound(err)
			case errors.Is(err, discount.ErrInactive),
				errors.Is(err, discount.ErrExpired),
				errors.Is(err, discount.ErrUsageLimit):
				return weberr.Unprocessable(err, err.Error())
			default:
				return err
			}
		}

		if err := upsert(ctx, db, clm.UserID); err != nil {
			return err
		}

		if err := SetDiscount(ctx, db, clm.UserID, &da.Code); err != nil {
			return err
		}

		c, err := load(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleRemoveDiscount(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if err := SetDiscount(ctx, db, clm.UserID, nil); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
