package order

import (
	"errors"
	"time"
)

type Status string

const (
	// Pending orders await payment confirmation. The sweep reclaims them
	// after a day.
	Pending Status = "pending"
	Paid    Status = "paid"
	// Expired is terminal; rows are deleted once past the grace period.
	Expired  Status = "expired"
	Refunded Status = "refunded"
)

const (
	ProviderStripe = "stripe"
	ProviderPaypal = "paypal"
	// ProviderFree marks fully discounted orders that never hit a gateway.
	ProviderFree = "free"
)

var (
	ErrEmptyCart     = errors.New("no items to checkout")
	ErrNotFound      = errors.New("order not found")
	ErrNotRefundable = errors.New("order is not refundable")
)

// Order snapshots the cart at checkout time. Once paid, line items and the
// total never change; a later price or discount edit has no effect on it.
type Order struct {
	ID             string    `json:"id" db:"order_id"`
	UserID         string    `json:"userId" db:"user_id"`
	Provider       string    `json:"provider" db:"provider"`
	ProviderID     string    `json:"providerId" db:"provider_id"`
	CaptureID      string    `json:"-" db:"capture_id"`
	Status         Status    `json:"status" db:"status"`
	Subtotal       int       `json:"subtotal" db:"subtotal"`
	DiscountCode   string    `json:"discountCode,omitempty" db:"discount_code"`
	DiscountAmount int       `json:"discountAmount" db:"discount_amount"`
	Total          int       `json:"total" db:"total"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	Items []Item `json:"items,omitempty" db:"-"`
}

type Item struct {
	OrderID   string    `json:"orderId" db:"order_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Name      string    `json:"name" db:"name"`
	Price     int       `json:"price" db:"price"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
