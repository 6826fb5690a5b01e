package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coursehub/coursehub/api/background"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/config"
	"github.com/coursehub/coursehub/core/enrollment"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/database"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

// Refund reverses a paid order: the gateway refund goes out first, so a
// gateway failure leaves the order paid and the caller sees the error; only
// then is the status flipped and access revoked, in one transaction.
func Refund(ctx context.Context, db *sqlx.DB, strp *stripecl.API, pp *paypal.Client, orderID string) (Order, error) {
	ord, err := Fetch(ctx, db, orderID)
	if err != nil {
		return Order{}, err
	}

	if ord.Status != Paid {
		return Order{}, ErrNotRefundable
	}

	ord.Items, err = FetchItems(ctx, db, ord.ID)
	if err != nil {
		return Order{}, err
	}

	switch ord.Provider {
	case ProviderStripe:
		params := &stripe.RefundParams{PaymentIntent: stripe.String(ord.ProviderID)}
		if _, err := strp.Refunds.New(params); err != nil {
			return Order{}, fmt.Errorf("refunding payment[%s]: %w", ord.ProviderID, err)
		}

	case ProviderPaypal:
		if ord.CaptureID == "" {
			return Order{}, fmt.Errorf("order[%s] has no capture to refund", ord.ID)
		}
		if _, err := pp.RefundCapture(ctx, ord.CaptureID, paypal.RefundCaptureRequest{}); err != nil {
			return Order{}, fmt.Errorf("refunding capture[%s]: %w", ord.CaptureID, err)
		}

	case ProviderFree:
		// Nothing was charged.
	}

	err = database.Transaction(db, func(tx sqlx.ExtContext) error {
		moved, err := UpdateStatusIf(ctx, tx, ord.ID, Paid, Refunded)
		if err != nil {
			return err
		}
		if !moved {
			return ErrNotRefundable
		}

		courseIDs := make([]string, 0, len(ord.Items))
		for _, it := range ord.Items {
			courseIDs = append(courseIDs, it.CourseID)
		}

		return enrollment.Revoke(ctx, tx, ord.UserID, courseIDs)
	})
	if err != nil {
		return Order{}, fmt.Errorf("reversing order[%s]: %w", ord.ID, err)
	}

	ord.Status = Refunded
	return ord, nil
}

func HandleRefund(db *sqlx.DB, strp *stripecl.API, pp *paypal.Client, bg *background.Background, nt Notifier, cfg config.Email) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		ord, err := Refund(ctx, db, strp, pp, id)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				return weberr.NotFound(err)
			case errors.Is(err, ErrNotRefundable):
				return weberr.Conflict(ErrNotRefundable)
			default:
				return err
			}
		}

		if usr, err := user.Fetch(ctx, db, ord.UserID); err == nil {
			bg.Run(func() error {
				return nt.SendRefund(usr.Email, ord.ID, ord.Total)
			})
		}

		if cfg.SalesAddress != "" {
			bg.Run(func() error {
				return nt.SendRefund(cfg.SalesAddress, ord.ID, ord.Total)
			})
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}
