package test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/coursehub/coursehub/api/web"
	"github.com/gorilla/mux"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

type mockPaypal struct {
	expectedItems int
	expectedTotal int
	refunds       []string
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		web.Respond(context.Background(), w, tok, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units) != 1 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units[0].Items) != m.expectedItems {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if pu.Units[0].Amount.Value != strconv.Itoa(m.expectedTotal) {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		randID := fmt.Sprintf("paypal-%d", rand.Intn(300))
		ord := paypal.Order{ID: randID, Status: "CREATED"}
		web.Respond(context.Background(), w, ord, 200)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ord := map[string]any{
			"id":     id,
			"status": "COMPLETED",
			"purchase_units": []map[string]any{{
				"payments": map[string]any{
					"captures": []map[string]any{{"id": "capture-" + id}},
				},
			}},
		}
		web.Respond(context.Background(), w, ord, 200)
	})

	refund := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.refunds = append(m.refunds, mux.Vars(r)["id"])
		ref := map[string]any{"id": "refund-1", "status": "COMPLETED"}
		web.Respond(context.Background(), w, ref, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	r.Handle("/v2/payments/captures/{id}/refund", refund).Methods("POST")
	return r
}

type mockStripe struct {
	expectedTotal int
	refunds       []string
}

func (m *mockStripe) handle() http.Handler {
	intents := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, _ := mock.ParseParams(r)

		s, ok := params["amount"].(string)
		if !ok {
			web.Respond(context.Background(), w, nil, 400)
			return
		}
		amount, err := strconv.ParseInt(s, 10, 0)
		if err != nil {
			web.Respond(context.Background(), w, err, 400)
			return
		}

		if int(amount) != m.expectedTotal*100 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if params["currency"] != "usd" {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		meta, ok := params["metadata"].(map[string]any)
		if !ok {
			web.Respond(context.Background(), w, nil, 400)
			return
		}
		if id, ok := meta["order_id"].(string); !ok || id == "" {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		randID := fmt.Sprintf("pi_%d", rand.Intn(300))
		pi := map[string]any{
			"id":            randID,
			"object":        "payment_intent",
			"client_secret": randID + "_secret_test",
			"status":        "requires_payment_method",
		}
		web.Respond(context.Background(), w, pi, 200)
	})

	refunds := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, _ := mock.ParseParams(r)
		if pi, ok := params["payment_intent"].(string); ok {
			m.refunds = append(m.refunds, pi)
		}

		ref := map[string]any{"id": "re_1", "object": "refund", "status": "succeeded"}
		web.Respond(context.Background(), w, ref, 200)
	})

	customers := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cust := map[string]any{"id": "cus_test", "object": "customer"}
		web.Respond(context.Background(), w, cust, 200)
	})

	subscriptions := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := map[string]any{
			"id":     "sub_test",
			"object": "subscription",
			"status": "incomplete",
			"latest_invoice": map[string]any{
				"id":     "in_test",
				"object": "invoice",
				"payment_intent": map[string]any{
					"id":            "pi_sub",
					"object":        "payment_intent",
					"client_secret": "pi_sub_secret_test",
				},
			},
		}
		web.Respond(context.Background(), w, sub, 200)
	})

	cancel := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := map[string]any{
			"id":     mux.Vars(r)["id"],
			"object": "subscription",
			"status": "canceled",
		}
		web.Respond(context.Background(), w, sub, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", intents).Methods("POST")
	r.Handle("/v1/refunds", refunds).Methods("POST")
	r.Handle("/v1/customers", customers).Methods("POST")
	r.Handle("/v1/subscriptions", subscriptions).Methods("POST")
	r.Handle("/v1/subscriptions/{id}", cancel).Methods("DELETE")
	return r
}
