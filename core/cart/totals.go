package cart

import "github.com/coursehub/coursehub/core/discount"

// Totals computes subtotal, discount adjustment, and total for a set of
// items. A nil discount means no adjustment. The total never drops below
// zero.
func Totals(items []Item, d *discount.Discount) (subtotal int, adjustment int, total int) {
	for _, it := range items {
		subtotal += it.Price
	}

	if d != nil {
		adjustment = d.Adjustment(subtotal)
	}

	total = subtotal - adjustment
	if total < 0 {
		total = 0
	}
	return subtotal, adjustment, total
}
