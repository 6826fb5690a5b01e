package test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coursehub/coursehub/core/order"
	"github.com/coursehub/coursehub/validate"
	"github.com/sirupsen/logrus"
)

func TestSweep(t *testing.T) {
	env, err := NewTestEnv(t, "sweep_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()
	stale := time.Now().UTC().Add(-48 * time.Hour)

	abandoned := order.Order{
		ID:         validate.GenerateID(),
		UserID:     env.UserID,
		Provider:   order.ProviderStripe,
		ProviderID: "pi_stale",
		Status:     order.Pending,
		Subtotal:   10,
		Total:      10,
		CreatedAt:  stale,
		UpdatedAt:  stale,
	}
	if err := order.Create(ctx, env.DB, abandoned); err != nil {
		t.Fatal(err)
	}

	// First pass expires the abandoned checkout.
	if err := order.Sweep(ctx, env.DB, 24*time.Hour, 7*24*time.Hour, log); err != nil {
		t.Fatal(err)
	}

	ord, err := order.Fetch(ctx, env.DB, abandoned.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Status != order.Expired {
		t.Fatalf("expected an expired order, got %s", ord.Status)
	}

	// A late payment confirmation cannot resurrect it.
	ot := &orderTest{env}
	ot.sendPaymentSucceeded(t, "pi_stale", http.StatusInternalServerError)

	ord, err = order.Fetch(ctx, env.DB, abandoned.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Status != order.Expired {
		t.Fatalf("late webhook moved the order to %s", ord.Status)
	}

	// Once past the grace period the row is dropped for good.
	cutoff := time.Now().UTC().Add(-8 * 24 * time.Hour)
	if _, err := env.DB.ExecContext(ctx, `UPDATE orders SET updated_at = $1 WHERE order_id = $2`, cutoff, abandoned.ID); err != nil {
		t.Fatal(err)
	}

	if err := order.Sweep(ctx, env.DB, 24*time.Hour, 7*24*time.Hour, log); err != nil {
		t.Fatal(err)
	}

	if _, err := order.Fetch(ctx, env.DB, abandoned.ID); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected the order to be gone, got %v", err)
	}

	// Running again with nothing to do is fine.
	if err := order.Sweep(ctx, env.DB, 24*time.Hour, 7*24*time.Hour, log); err != nil {
		t.Fatal(err)
	}
}
