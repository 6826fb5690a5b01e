package discount

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("discount not found")
	ErrInactive   = errors.New("discount is not active")
	ErrExpired    = errors.New("discount is outside its validity window")
	ErrUsageLimit = errors.New("discount usage limit reached")
)

type Discount struct {
	ID             string    `json:"id" db:"discount_id"`
	Code           string    `json:"code" db:"code"`
	Percent        int       `json:"percent" db:"percent"`
	Amount         int       `json:"amount" db:"amount"`
	Active         bool      `json:"active" db:"active"`
	StartsAt       time.Time `json:"startsAt" db:"starts_at"`
	EndsAt         time.Time `json:"endsAt" db:"ends_at"`
	MaxUses        int       `json:"maxUses" db:"max_uses"`
	MaxUsesPerUser int       `json:"maxUsesPerUser" db:"max_uses_per_user"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
	Version        int       `json:"-" db:"version"`
}

type DiscountNew struct {
	Code           string    `json:"code" validate:"required,alphanum,min=3,max=32"`
	Percent        int       `json:"percent" validate:"gte=0,lte=100"`
	Amount         int       `json:"amount" validate:"gte=0,lte=10000"`
	Active         bool      `json:"active"`
	StartsAt       time.Time `json:"startsAt" validate:"required"`
	EndsAt         time.Time `json:"endsAt" validate:"required,gtfield=StartsAt"`
	MaxUses        int       `json:"maxUses" validate:"gte=0"`
	MaxUsesPerUser int       `json:"maxUsesPerUser" validate:"gte=0"`
}

type DiscountUp struct {
	Percent        *int       `json:"percent" validate:"omitempty,gte=0,lte=100"`
	Amount         *int       `json:"amount" validate:"omitempty,gte=0,lte=10000"`
	Active         *bool      `json:"active"`
	StartsAt       *time.Time `json:"startsAt"`
	EndsAt         *time.Time `json:"endsAt"`
	MaxUses        *int       `json:"maxUses" validate:"omitempty,gte=0"`
	MaxUsesPerUser *int       `json:"maxUsesPerUser" validate:"omitempty,gte=0"`
}

// Validate checks applicability at the given instant, with uses and userUses
// being the recorded redemption counts. A zero cap means unlimited.
func (d Discount) Validate(now time.Time, uses int, userUses int) error {
	if !d.Active {
		return ErrInactive
	}
	if now.Before(d.StartsAt) || now.After(d.EndsAt) {
		return ErrExpired
	}
	if d.MaxUses > 0 && uses >= d.MaxUses {
		return ErrUsageLimit
	}
	if d.MaxUsesPerUser > 0 && userUses >= d.MaxUsesPerUser {
		return ErrUsageLimit
	}
	return nil
}

// Adjustment is the amount subtracted from subtotal. A percentage wins over a
// fixed amount when both are configured. Never exceeds the subtotal.
func (d Discount) Adjustment(subtotal int) int {
	var adj int
	switch {
	case d.Percent > 0:
		adj = subtotal * d.Percent / 100
	default:
		adj = d.Amount
	}

	if adj > subtotal {
		adj = subtotal
	}
	return adj
}

// Apply returns the discounted total, floored at zero.
func (d Discount) Apply(subtotal int) int {
	tot := subtotal - d.Adjustment(subtotal)
	if tot < 0 {
		tot = 0
	}
	return tot
}
