package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coursehub/coursehub/core/course"
	"github.com/coursehub/coursehub/core/discount"
	"github.com/coursehub/coursehub/core/order"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74/webhook"
)

type orderTest struct {
	*TestEnv
}

func TestOrder(t *testing.T) {
	env, err := NewTestEnv(t, "order_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ot := &orderTest{env}
	ct := &courseTest{env}
	rt := &cartTest{env}
	dt := &discountTest{env}

	c1 := ct.createCourseOK(t, 60)
	c2 := ct.createCourseOK(t, 40)
	c3 := ct.createCourseOK(t, 25)
	c4 := ct.createCourseOK(t, 35)

	ct.listCoursesOwnedOK(t, []course.Course{})

	dt.createDiscountOK(t, tenPercent("SAVE10"))

	// Stripe checkout with a 10% code: 100 becomes 90.
	rt.createItemOK(t, c1.ID)
	rt.createItemOK(t, c2.ID)
	if status := rt.applyDiscount(t, "SAVE10"); status != http.StatusOK {
		t.Fatalf("can't apply discount: status code %d", status)
	}

	ot.Stripe.expectedTotal = 90
	orderID := ot.stripeCheckoutOK(t)

	ctx := context.Background()
	ord, err := order.Fetch(ctx, env.DB, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Status != order.Pending {
		t.Fatalf("expected a pending order, got %s", ord.Status)
	}
	if ord.Subtotal != 100 || ord.DiscountAmount != 10 || ord.Total != 90 {
		t.Fatalf("wrong order amounts: %d/%d/%d", ord.Subtotal, ord.DiscountAmount, ord.Total)
	}

	// Nothing is owned until the provider confirms.
	ct.listCoursesOwnedOK(t, []course.Course{})

	ot.sendPaymentSucceeded(t, ord.ProviderID, http.StatusNoContent)
	ct.listCoursesOwnedOK(t, []course.Course{c1, c2})

	// A duplicate delivery is acked and grants nothing twice.
	ot.sendPaymentSucceeded(t, ord.ProviderID, http.StatusNoContent)
	ct.listCoursesOwnedOK(t, []course.Course{c1, c2})

	ord, err = order.Fetch(ctx, env.DB, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Status != order.Paid {
		t.Fatalf("expected a paid order, got %s", ord.Status)
	}

	// Fulfillment flushed the cart.
	if crt := rt.showCartOK(t); len(crt.Items) != 0 {
		t.Fatalf("expected an empty cart, got %d items", len(crt.Items))
	}

	ot.sendTamperedWebhook(t)

	// Paypal checkout for the second pair, no discount this time.
	rt.createItemOK(t, c3.ID)
	rt.createItemOK(t, c4.ID)

	ot.Paypal.expectedItems = 2
	ot.Paypal.expectedTotal = 60
	ot.testPaypal(t)

	ct.listCoursesOwnedOK(t, []course.Course{c1, c2, c3, c4})

	// Refunding the stripe order revokes its courses and hits the gateway.
	refunded := ot.refundOK(t, orderID)
	if refunded.Status != order.Refunded {
		t.Fatalf("expected a refunded order, got %s", refunded.Status)
	}
	ct.listCoursesOwnedOK(t, []course.Course{c3, c4})

	found := false
	for _, pi := range env.Stripe.refunds {
		found = found || pi == ord.ProviderID
	}
	if !found {
		t.Fatalf("no gateway refund recorded for payment %s", ord.ProviderID)
	}

	// A refunded order cannot be refunded again.
	if status := ot.refund(t, orderID); status != http.StatusConflict {
		t.Fatalf("expected 409 on double refund, got %d", status)
	}
}

func TestOrderEmptyCart(t *testing.T) {
	env, err := NewTestEnv(t, "order_empty_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	w, err := env.Client().Post(env.URL+"/orders/checkout", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on empty cart, got %s", w.Status)
	}
}

func TestOrderFree(t *testing.T) {
	env, err := NewTestEnv(t, "order_free_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ct := &courseTest{env}
	rt := &cartTest{env}
	dt := &discountTest{env}

	c := ct.createCourseOK(t, 100)
	rt.createItemOK(t, c.ID)

	now := time.Now().UTC()
	dt.createDiscountOK(t, discount.DiscountNew{
		Code:     "FULL100",
		Percent:  100,
		Active:   true,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(24 * time.Hour),
	})

	if status := rt.applyDiscount(t, "FULL100"); status != http.StatusOK {
		t.Fatalf("can't apply discount: status code %d", status)
	}

	// A fully discounted checkout skips the gateway and grants on the spot.
	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	w, err := env.Client().Post(env.URL+"/orders/checkout", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't checkout for free: status code %s", w.Status)
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	ord, err := order.Fetch(context.Background(), env.DB, resp.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Provider != order.ProviderFree || ord.Status != order.Paid || ord.Total != 0 {
		t.Fatalf("wrong free order: provider %s, status %s, total %d", ord.Provider, ord.Status, ord.Total)
	}

	ct.listCoursesOwnedOK(t, []course.Course{c})
}

func (ot *orderTest) stripeCheckoutOK(t *testing.T) string {
	if err := Login(ot.Server, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.Server)

	w, err := ot.Client().Post(ot.URL+"/orders/checkout", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create stripe order: status code %s", w.Status)
	}

	var resp struct {
		OrderID      string `json:"orderId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("cannot unmarshal checkout response: %v", err)
	}

	if resp.ClientSecret == "" {
		t.Fatal("checkout returned no client secret")
	}
	return resp.OrderID
}

func (ot *orderTest) sendPaymentSucceeded(t *testing.T, providerID string, wantStatus int) {
	raw, err := json.Marshal(map[string]any{"id": providerID})
	if err != nil {
		t.Fatal(err)
	}

	evt := map[string]any{
		"api_version": "2022-11-15",
		"type":        "payment_intent.succeeded",
		"data":        map[string]any{"object": json.RawMessage(raw)},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    ot.WebhookSecret,
		Timestamp: time.Now(),
	})

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe/webhook", bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err := ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != wantStatus {
		t.Fatalf("webhook: expected status %d, got %s", wantStatus, w.Status)
	}
}

func (ot *orderTest) sendTamperedWebhook(t *testing.T) {
	b := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_forged"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    "whsec_wrong",
		Timestamp: time.Now(),
	})

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe/webhook", bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err := ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on a tampered webhook, got %s", w.Status)
	}
}

func (ot *orderTest) testPaypal(t *testing.T) {
	if err := Login(ot.Server, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.Server)

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/paypal", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create paypal order: status code %s", w.Status)
	}

	var ord paypal.Order
	if err := json.NewDecoder(w.Body).Decode(&ord); err != nil {
		t.Fatalf("cannot unmarshal paypal order: %v", err)
	}

	r, err = http.NewRequest(http.MethodPost, ot.URL+"/orders/paypal/"+ord.ID+"/capture", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err = ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't capture paypal order: status code %s", w.Status)
	}

	// The capture id must be on the order for a later refund.
	dbOrd, err := order.FetchByProviderID(context.Background(), ot.DB, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dbOrd.CaptureID == "" {
		t.Fatal("paypal capture id was not stored")
	}
}

func (ot *orderTest) refundOK(t *testing.T, orderID string) order.Order {
	if err := Login(ot.Server, ot.AdminEmail, ot.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.Server)

	w, err := ot.Client().Post(ot.URL+"/orders/"+orderID+"/refund", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't refund order: status code %s", w.Status)
	}

	var ord order.Order
	if err := json.NewDecoder(w.Body).Decode(&ord); err != nil {
		t.Fatalf("cannot unmarshal refunded order: %v", err)
	}
	return ord
}

func (ot *orderTest) refund(t *testing.T, orderID string) int {
	if err := Login(ot.Server, ot.AdminEmail, ot.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.Server)

	w, err := ot.Client().Post(ot.URL+"/orders/"+orderID+"/refund", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	return w.StatusCode
}
