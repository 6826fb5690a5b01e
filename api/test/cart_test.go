package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coursehub/coursehub/core/cart"
	"github.com/coursehub/coursehub/core/discount"
)

type cartTest struct {
	*TestEnv
}

func (rt *cartTest) createItemOK(t *testing.T, courseID string) {
	if status := rt.createItem(t, courseID); status != http.StatusCreated {
		t.Fatalf("can't add course %s to cart: status code %d", courseID, status)
	}
}

func (rt *cartTest) createItem(t *testing.T, courseID string) int {
	if err := Login(rt.Server, rt.UserEmail, rt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(rt.Server)

	body, err := json.Marshal(cart.ItemNew{CourseID: courseID})
	if err != nil {
		t.Fatal(err)
	}

	r, err := http.NewRequest(http.MethodPut, rt.URL+"/cart/items", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := rt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	return w.StatusCode
}

func (rt *cartTest) showCartOK(t *testing.T) cart.Cart {
	if err := Login(rt.Server, rt.UserEmail, rt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(rt.Server)

	w, err := rt.Client().Get(rt.URL + "/cart")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch cart: status code %s", w.Status)
	}

	var c cart.Cart
	if err := json.NewDecoder(w.Body).Decode(&c); err != nil {
		t.Fatalf("cannot unmarshal cart: %v", err)
	}
	return c
}

func (rt *cartTest) applyDiscount(t *testing.T, code string) int {
	if err := Login(rt.Server, rt.UserEmail, rt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(rt.Server)

	body, err := json.Marshal(cart.DiscountApply{Code: code})
	if err != nil {
		t.Fatal(err)
	}

	r, err := http.NewRequest(http.MethodPut, rt.URL+"/cart/discount", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := rt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	return w.StatusCode
}

func TestCart(t *testing.T) {
	env, err := NewTestEnv(t, "cart_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	rt := &cartTest{env}
	ct := &courseTest{env}
	dt := &discountTest{env}

	c1 := ct.createCourseOK(t, 100)
	c2 := ct.createCourseOK(t, 40)

	rt.createItemOK(t, c1.ID)
	rt.createItemOK(t, c2.ID)

	// Adding the same course twice is a conflict.
	if status := rt.createItem(t, c1.ID); status != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate item, got %d", status)
	}

	crt := rt.showCartOK(t)
	if crt.Subtotal != 140 || crt.Discount != 0 || crt.Total != 140 {
		t.Fatalf("wrong totals: %d/%d/%d", crt.Subtotal, crt.Discount, crt.Total)
	}

	// Unknown codes don't stick to the cart.
	if status := rt.applyDiscount(t, "GHOST10"); status != http.StatusNotFound {
		t.Fatalf("expected 404 on unknown code, got %d", status)
	}

	// Neither do expired ones, and the totals stay put.
	now := time.Now().UTC()
	dt.createDiscountOK(t, discount.DiscountNew{
		Code:     "BYGONE10",
		Percent:  10,
		Active:   true,
		StartsAt: now.Add(-48 * time.Hour),
		EndsAt:   now.Add(-24 * time.Hour),
	})

	if status := rt.applyDiscount(t, "BYGONE10"); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on expired code, got %d", status)
	}

	crt = rt.showCartOK(t)
	if crt.Total != 140 {
		t.Fatalf("expired code changed the total to %d", crt.Total)
	}

	// A valid 10% code takes the total to 126.
	dt.createDiscountOK(t, tenPercent("SAVE10"))
	if status := rt.applyDiscount(t, "SAVE10"); status != http.StatusOK {
		t.Fatalf("can't apply discount: status code %d", status)
	}

	crt = rt.showCartOK(t)
	if crt.Subtotal != 140 || crt.Discount != 14 || crt.Total != 126 {
		t.Fatalf("wrong discounted totals: %d/%d/%d", crt.Subtotal, crt.Discount, crt.Total)
	}

	// Dropping the code restores the full price.
	if err := Login(rt.Server, rt.UserEmail, rt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(rt.Server)

	r, err := http.NewRequest(http.MethodDelete, rt.URL+"/cart/discount", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := rt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't remove discount: status code %s", w.Status)
	}

	crt = rt.showCartOK(t)
	if crt.Total != 140 {
		t.Fatalf("expected full total after removing the code, got %d", crt.Total)
	}

	// Removing an item is idempotent.
	for i := 0; i < 2; i++ {
		r, err := http.NewRequest(http.MethodDelete, rt.URL+"/cart/items/"+c2.ID, nil)
		if err != nil {
			t.Fatal(err)
		}

		w, err := rt.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		defer w.Body.Close()

		if w.StatusCode != http.StatusNoContent {
			t.Fatalf("can't remove item: status code %s", w.Status)
		}
	}

	crt = rt.showCartOK(t)
	if len(crt.Items) != 1 || crt.Subtotal != 100 {
		t.Fatalf("expected one item worth 100, got %d items worth %d", len(crt.Items), crt.Subtotal)
	}
}
