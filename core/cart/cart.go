package cart

import (
	"time"
)

type Cart struct {
	UserID       string    `json:"-" db:"user_id"`
	DiscountCode *string   `json:"discountCode,omitempty" db:"discount_code"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	Version      int       `json:"-" db:"version"`
	Items        []Item    `json:"items" db:"-"`

	// Computed on read: subtotal over item prices, discount adjustment, and
	// the total floored at zero.
	Subtotal int `json:"subtotal" db:"-"`
	Discount int `json:"discount" db:"-"`
	Total    int `json:"total" db:"-"`
}

type Item struct {
	UserID    string    `json:"-" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Price     int       `json:"price" db:"price"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type ItemNew struct {
	CourseID string `json:"courseId" validate:"required,uuid4"`
}

type DiscountApply struct {
	Code string `json:"code" validate:"required,alphanum,min=3,max=32"`
}
