package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coursehub/coursehub/core/discount"
)

type discountTest struct {
	*TestEnv
}

func (dt *discountTest) createDiscountOK(t *testing.T, dn discount.DiscountNew) discount.Discount {
	if err := Login(dt.Server, dt.AdminEmail, dt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(dt.Server)

	body, err := json.Marshal(dn)
	if err != nil {
		t.Fatal(err)
	}

	w, err := dt.Client().Post(dt.URL+"/discounts", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusCreated {
		t.Fatalf("can't create discount: status code %s", w.Status)
	}

	var d discount.Discount
	if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
		t.Fatalf("cannot unmarshal created discount: %v", err)
	}
	return d
}

// tenPercent is the standard promo used across the tests: 10% off, currently
// valid, unlimited uses.
func tenPercent(code string) discount.DiscountNew {
	now := time.Now().UTC()
	return discount.DiscountNew{
		Code:     code,
		Percent:  10,
		Active:   true,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(24 * time.Hour),
	}
}

func TestDiscount(t *testing.T) {
	env, err := NewTestEnv(t, "discount_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	dt := &discountTest{env}
	created := dt.createDiscountOK(t, tenPercent("WELCOME10"))

	if err := Login(dt.Server, dt.AdminEmail, dt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(dt.Server)

	w, err := dt.Client().Get(dt.URL + "/discounts/WELCOME10")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch discount: status code %s", w.Status)
	}

	var got discount.Discount
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != created.ID || got.Percent != 10 {
		t.Fatalf("wrong discount: got %+v", got)
	}

	// Codes resolve case-insensitively.
	w, err = dt.Client().Get(dt.URL + "/discounts/welcome10")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("lowercase code lookup failed: status code %s", w.Status)
	}

	// Deactivate it.
	active := false
	up, err := json.Marshal(discount.DiscountUp{Active: &active})
	if err != nil {
		t.Fatal(err)
	}

	r, err := http.NewRequest(http.MethodPut, dt.URL+"/discounts/WELCOME10", bytes.NewBuffer(up))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err = dt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't update discount: status code %s", w.Status)
	}

	var updated discount.Discount
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatal(err)
	}
	if updated.Active {
		t.Fatal("discount should be inactive after the update")
	}
}

func TestDiscountAdminOnly(t *testing.T) {
	env, err := NewTestEnv(t, "discount_admin_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	body, err := json.Marshal(tenPercent("NOPE10"))
	if err != nil {
		t.Fatal(err)
	}

	w, err := env.Client().Post(env.URL+"/discounts", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin, got %s", w.Status)
	}
}
