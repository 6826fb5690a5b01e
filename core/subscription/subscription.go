package subscription

import (
	"errors"
	"time"
)

// Statuses mirror the billing provider's lifecycle. Incomplete rows are
// purged by the sweep once they outlive the grace period.
const (
	Incomplete = "incomplete"
	Active     = "active"
	PastDue    = "past_due"
	Canceled   = "canceled"
)

var ErrNotFound = errors.New("subscription not found")

type Subscription struct {
	ID         string    `json:"id" db:"subscription_id"`
	UserID     string    `json:"userId" db:"user_id"`
	PlanID     string    `json:"planId" db:"plan_id"`
	ProviderID string    `json:"providerId" db:"provider_id"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

type SubscriptionNew struct {
	PlanID string `json:"planId" validate:"required"`
}

type Plan struct {
	ID              string `json:"id" db:"plan_id"`
	Name            string `json:"name" db:"name"`
	ProviderPriceID string `json:"-" db:"provider_price_id"`
	Amount          int    `json:"amount" db:"amount"`
}

type PlanNew struct {
	ID              string `json:"id" validate:"required,alphanum"`
	Name            string `json:"name" validate:"required"`
	ProviderPriceID string `json:"providerPriceId" validate:"required"`
	Amount          int    `json:"amount" validate:"required,gte=0"`
}
