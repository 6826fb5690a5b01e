package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coursehub/coursehub/api/background"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/config"
	"github.com/coursehub/coursehub/core/cart"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/course"
	"github.com/coursehub/coursehub/core/discount"
	"github.com/coursehub/coursehub/core/enrollment"
	"github.com/coursehub/coursehub/core/subscription"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/database"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/plutov/paypal/v4"
)

// Notifier delivers the purchase lifecycle emails. Implemented by the email
// package.
type Notifier interface {
	SendReceipt(to string, orderID string, total int) error
	SendRefund(to string, orderID string, total int) error
	SendSale(to string, orderID string, total int) error
}

// build converts the user's cart into an order snapshot. Prices come from the
// live course records, never from the cart, and the applied discount is
// re-validated here so a code that expired since it was applied cannot be
// honored. No rows are written.
func build(ctx context.Context, db *sqlx.DB, userID string) (Order, error) {
	items, err := cart.FetchItems(ctx, db, userID)
	if err != nil {
		return Order{}, fmt.Errorf("fetching cart items: %w", err)
	}

	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}

	now := time.Now().UTC()
	ord := Order{
		ID:        validate.GenerateID(),
		UserID:    userID,
		Status:    Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, it := range items {
		c, err := course.Fetch(ctx, db, it.CourseID)
		if err != nil {
			return Order{}, fmt.Errorf("fetching course[%s]: %w", it.CourseID, err)
		}

		if !c.Published {
			err := fmt.Errorf("course[%s] is no longer available", c.ID)
			return Order{}, weberr.Unprocessable(err, "a course in the cart is no longer available")
		}

		ord.Items = append(ord.Items, Item{
			OrderID:   ord.ID,
			CourseID:  c.ID,
			Name:      c.Name,
			Price:     c.Price,
			CreatedAt: now,
		})
		ord.Subtotal += c.Price
	}

	ord.Total = ord.Subtotal

	crt, err := cart.Fetch(ctx, db, userID)
	if err != nil {
		return Order{}, fmt.Errorf("fetching cart: %w", err)
	}

	if crt.DiscountCode != nil {
		d, err := discount.Resolve(ctx, db, *crt.DiscountCode, userID)
		if err != nil {
			switch {
			case errors.Is(err, discount.ErrNotFound),
				errors.Is(err, discount.ErrInactive),
				errors.Is(err, discount.ErrExpired),
				errors.Is(err, discount.ErrUsageLimit):
				return Order{}, weberr.Unprocessable(err, err.Error())
			default:
				return Order{}, err
			}
		}

		ord.DiscountCode = d.Code
		ord.DiscountAmount = d.Adjustment(ord.Subtotal)
		ord.Total = d.Apply(ord.Subtotal)
	}

	return ord, nil
}

// prepare persists the order with its items as one unit. It runs only after
// the payment intent has been created: a gateway failure must leave no order
// behind.
func prepare(ctx context.Context, db *sqlx.DB, ord Order) error {
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		if err := Create(ctx, tx, ord); err != nil {
			return fmt.Errorf("creating order: %w", err)
		}

		for _, it := range ord.Items {
			if err := CreateItem(ctx, tx, it); err != nil {
				return fmt.Errorf("creating item: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("creating the order bound to payment[%s] for user[%s]: %w", ord.ProviderID, ord.UserID, err)
	}
	return nil
}

// fulfill moves the order bound to the given payment to paid and grants what
// was bought. The transition is a compare-and-set: an order already paid is
// reported as a duplicate delivery and nothing is granted twice, while an
// order the sweep expired refuses to resurrect.
func fulfill(ctx context.Context, db *sqlx.DB, providerID string) (Order, bool, error) {
	ord, err := FetchByProviderID(ctx, db, providerID)
	if err != nil {
		return Order{}, false, fmt.Errorf("fetching the order bound to payment[%s]: %w", providerID, err)
	}

	var moved bool
	err = database.Transaction(db, func(tx sqlx.ExtContext) error {
		moved, err = UpdateStatusIf(ctx, tx, ord.ID, Pending, Paid)
		if err != nil {
			return err
		}

		if !moved {
			if ord.Status == Paid {
				return nil
			}
			return fmt.Errorf("order[%s] is %s, cannot mark paid", ord.ID, ord.Status)
		}

		items, err := FetchItems(ctx, tx, ord.ID)
		if err != nil {
			return err
		}

		for _, it := range items {
			if err := enrollment.Grant(ctx, tx, ord.UserID, it.CourseID, ord.ID); err != nil {
				return err
			}
		}

		if ord.DiscountCode != "" {
			d, err := discount.FetchByCode(ctx, tx, ord.DiscountCode)
			if err == nil {
				if err := discount.Redeem(ctx, tx, d.ID, ord.UserID, ord.ID); err != nil {
					return err
				}
			} else if !errors.Is(err, discount.ErrNotFound) {
				return err
			}
		}

		if err := cart.Delete(ctx, tx, ord.UserID); err != nil {
			return fmt.Errorf("flushing cart: %w", err)
		}

		return nil
	})

	if err != nil {
		return Order{}, false, fmt.Errorf("fulfilling the order[%s] bound to payment[%s]: %w", ord.ID, providerID, err)
	}
	return ord, moved, nil
}

// notify queues the buyer receipt and the back-office sale notice.
func notify(ctx context.Context, db *sqlx.DB, bg *background.Background, nt Notifier, salesAddr string, ord Order) {
	usr, err := user.Fetch(ctx, db, ord.UserID)
	if err != nil {
		return
	}

	bg.Run(func() error {
		return nt.SendReceipt(usr.Email, ord.ID, ord.Total)
	})

	if salesAddr != "" {
		bg.Run(func() error {
			return nt.SendSale(salesAddr, ord.ID, ord.Total)
		})
	}
}

// HandleCheckout starts a Stripe payment for the current cart and returns
// the client secret the front end confirms against. A fully discounted cart
// skips the gateway and is fulfilled on the spot.
func HandleCheckout(db *sqlx.DB, strp *stripecl.API, bg *background.Background, nt Notifier, cfg config.Email) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ord, err := build(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, ErrEmptyCart) {
				return weberr.Unprocessable(err, err.Error())
			}
			return err
		}

		if ord.Total == 0 {
			ord.Provider = ProviderFree
			ord.ProviderID = "free-" + ord.ID

			if err := prepare(ctx, db, ord); err != nil {
				return err
			}

			paid, granted, err := fulfill(ctx, db, ord.ProviderID)
			if err != nil {
				return err
			}
			if granted {
				notify(ctx, db, bg, nt, cfg.SalesAddress, paid)
			}

			return web.Respond(ctx, w, struct {
				OrderID string `json:"orderId"`
			}{ord.ID}, http.StatusOK)
		}

		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(int64(ord.Total) * 100),
			Currency: stripe.String(string(stripe.CurrencyUSD)),
		}
		params.AddMetadata("order_id", ord.ID)
		params.AddMetadata("user_id", ord.UserID)

		pi, err := strp.PaymentIntents.New(params)
		if err != nil {
			err = fmt.Errorf("creating payment intent: %w", err)
			return weberr.NewError(err, "payment setup failed", http.StatusBadGateway)
		}

		ord.Provider = ProviderStripe
		ord.ProviderID = pi.ID

		if err := prepare(ctx, db, ord); err != nil {
			return fmt.Errorf("creating the order on the database: %w", err)
		}

		return web.Respond(ctx, w, struct {
			OrderID      string `json:"orderId"`
			ClientSecret string `json:"clientSecret"`
		}{ord.ID, pi.ClientSecret}, http.StatusOK)
	}
}

// HandleStripeWebhook is the asynchronous confirmation path. The signature is
// verified before anything in the payload is trusted; handler failures bubble
// up as non-2xx so the provider retries.
func HandleStripeWebhook(db *sqlx.DB, cfgs config.Stripe, bg *background.Background, nt Notifier, cfge config.Email) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfgs.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		switch event.Type {
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
			}

			ord, granted, err := fulfill(ctx, db, pi.ID)
			if err != nil {
				return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
			}
			if granted {
				notify(ctx, db, bg, nt, cfge.SalesAddress, ord)
			}

		case "customer.subscription.updated", "customer.subscription.deleted":
			var sub stripe.Subscription
			if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
			}

			if err := subscription.SyncStatus(ctx, db, sub.ID, string(sub.Status)); err != nil {
				return fmt.Errorf("syncing subscription[%s]: %w", sub.ID, err)
			}
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandlePaypalCheckout(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ord, err := build(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, ErrEmptyCart) {
				return weberr.Unprocessable(err, err.Error())
			}
			return err
		}

		items := make([]paypal.Item, 0, len(ord.Items))
		for _, it := range ord.Items {
			items = append(items, paypal.Item{
				Quantity: "1",
				Name:     it.Name,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    strconv.Itoa(it.Price),
				},
			})
		}

		units := []paypal.PurchaseUnitRequest{{
			Items: items,

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    strconv.Itoa(ord.Total),

				Breakdown: &paypal.PurchaseUnitAmountBreakdown{
					ItemTotal: &paypal.Money{
						Currency: "USD",
						Value:    strconv.Itoa(ord.Subtotal),
					},
					Discount: &paypal.Money{
						Currency: "USD",
						Value:    strconv.Itoa(ord.DiscountAmount),
					},
				},
			},
		}}

		app := &paypal.ApplicationContext{}

		ppOrd, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, app)
		if err != nil {
			err = fmt.Errorf("creating paypal order: %w", err)
			return weberr.NewError(err, "payment setup failed", http.StatusBadGateway)
		}

		ord.Provider = ProviderPaypal
		ord.ProviderID = ppOrd.ID

		if err := prepare(ctx, db, ord); err != nil {
			return fmt.Errorf("creating the order on the database: %w", err)
		}

		return web.Respond(ctx, w, ppOrd, http.StatusOK)
	}
}

func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client, bg *background.Background, nt Notifier, cfg config.Email) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		providerID := web.Param(r, "id")

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		if resp.Status != "COMPLETED" {
			return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", providerID, resp.Status)
		}

		ord, granted, err := fulfill(ctx, db, providerID)
		if err != nil {
			return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
		}

		if len(resp.PurchaseUnits) > 0 && resp.PurchaseUnits[0].Payments != nil && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
			captureID := resp.PurchaseUnits[0].Payments.Captures[0].ID
			if err := UpdateCaptureID(ctx, db, ord.ID, captureID); err != nil {
				return err
			}
		}

		if granted {
			notify(ctx, db, bg, nt, cfg.SalesAddress, ord)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ords, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !claims.IsAdmin(ctx) && !claims.IsUser(ctx, ord.UserID) {
			return weberr.NotAuthorized(errors.New("not allowed to read other users' orders"))
		}

		ord.Items, err = FetchItems(ctx, db, ord.ID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}
