package domain

import "fmt"

type CouponType string

const (
	CouponTypeFixed      CouponType = "FIXED"
	CouponTypePercentage CouponType = "PERCENTAGE"
)

type Coupon struct {
	ID    string     `json:"id"`
	Type  CouponType `json:"type"`
	Value int64      `json:"value"`
}

// Validate checks the value range for the coupon type: PERCENTAGE must be in
// [1,100], FIXED must be non-negative.
func (c *Coupon) Validate() error {
	switch c.Type {
	case CouponTypeFixed:
		if c.Value < 0 {
			return fmt.Errorf("%w: fixed coupon value must be non-negative", ErrBadRequest)
		}
	case CouponTypePercentage:
		if c.Value < 1 || c.Value > 100 {
			return fmt.Errorf("%w: percentage coupon value must be in [1,100]", ErrBadRequest)
		}
	default:
		return fmt.Errorf("%w: unknown coupon type %q", ErrBadRequest, c.Type)
	}
	return nil
}

// AppliedValue computes the discount the coupon grants against basePrice.
// A FIXED discount is capped at basePrice so the total cannot go negative.
func (c *Coupon) AppliedValue(basePrice int64) int64 {
	switch c.Type {
	case CouponTypeFixed:
		if c.Value > basePrice {
			return basePrice
		}
		return c.Value
	case CouponTypePercentage:
		return basePrice * c.Value / 100
	}
	return 0
}

// CouponUsage marks a (user, coupon) redemption. Records are never deleted.
type CouponUsage struct {
	CouponID string `json:"coupon_id"`
	UserID   string `json:"user_id"`
}
