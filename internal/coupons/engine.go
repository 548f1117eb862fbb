package coupons

import "github.com/commercekit/fulfillment/internal/domain"

// Discount computes the combined discount a set of coupons grants against
// basePrice. Coupons apply in order against the remaining price, so stacked
// discounts can never exceed the base.
func Discount(coupons []domain.Coupon, basePrice int64) int64 {
	remaining := basePrice
	var total int64
	for _, c := range coupons {
		applied := c.AppliedValue(remaining)
		total += applied
		remaining -= applied
	}
	return total
}
