package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

func HandleListPlans(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ps, err := FetchPlans(ctx, db)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

func HandleCreatePlan(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var pn PlanNew
		if err := web.Decode(w, r, &pn); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(pn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		p := Plan{
			ID:              pn.ID,
			Name:            pn.Name,
			ProviderPriceID: pn.ProviderPriceID,
			Amount:          pn.Amount,
		}

		if err := CreatePlan(ctx, db, p); err != nil {
			return err
		}

		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		subs, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, subs, http.StatusOK)
	}
}

// HandleCreate starts an incomplete subscription and hands the first
// invoice's client secret back for confirmation. The row stays incomplete
// until the provider reports otherwise through the webhook.
func HandleCreate(db *sqlx.DB, strp *stripecl.API) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var sn SubscriptionNew
		if err := web.Decode(w, r, &sn); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(sn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		plan, err := FetchPlan(ctx, db, sn.PlanID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		usr, err := user.Fetch(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		if usr.CustomerID == "" {
			cust, err := strp.Customers.New(&stripe.CustomerParams{
				Email: stripe.String(usr.Email),
			})
			if err != nil {
				err = fmt.Errorf("creating customer: %w", err)
				return weberr.NewError(err, "payment setup failed", http.StatusBadGateway)
			}

			if err := user.UpdateCustomerID(ctx, db, usr.ID, cust.ID); err != nil {
				return err
			}
			usr.CustomerID = cust.ID
		}

		params := &stripe.SubscriptionParams{
			Customer: stripe.String(usr.CustomerID),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(plan.ProviderPriceID)},
			},
			PaymentBehavior: stripe.String("default_incomplete"),
		}
		params.AddExpand("latest_invoice.payment_intent")

		psub, err := strp.Subscriptions.New(params)
		if err != nil {
			err = fmt.Errorf("creating subscription: %w", err)
			return weberr.NewError(err, "payment setup failed", http.StatusBadGateway)
		}

		now := time.Now().UTC()
		sub := Subscription{
			ID:         validate.GenerateID(),
			UserID:     usr.ID,
			PlanID:     plan.ID,
			ProviderID: psub.ID,
			Status:     Incomplete,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := Create(ctx, db, sub); err != nil {
			return err
		}

		var secret string
		if psub.LatestInvoice != nil && psub.LatestInvoice.PaymentIntent != nil {
			secret = psub.LatestInvoice.PaymentIntent.ClientSecret
		}

		return web.Respond(ctx, w, struct {
			SubscriptionID string `json:"subscriptionId"`
			ClientSecret   string `json:"clientSecret"`
		}{sub.ID, secret}, http.StatusOK)
	}
}

func HandleCancel(db *sqlx.DB, strp *stripecl.API) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		sub, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !claims.IsAdmin(ctx) && sub.UserID != clm.UserID {
			return weberr.NotAuthorized(errors.New("not allowed to cancel other users' subscriptions"))
		}

		if _, err := strp.Subscriptions.Cancel(sub.ProviderID, nil); err != nil {
			err = fmt.Errorf("canceling subscription[%s]: %w", sub.ProviderID, err)
			return weberr.NewError(err, "subscription cancellation failed", http.StatusBadGateway)
		}

		if err := SyncStatus(ctx, db, sub.ProviderID, Canceled); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
