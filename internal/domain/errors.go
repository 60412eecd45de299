package domain

import "errors"

var (
	ErrNegativeQuantity    = errors.New("item quantity cannot be negative")
	ErrUnknownCoupon       = errors.New("coupon code is not valid for this cart")
	ErrShipmentNotEligible = errors.New("shipment is not eligible for current cart contents")
	ErrPaymentNotEligible  = errors.New("payment method is not eligible for current cart contents")
	ErrSelfMerge           = errors.New("cannot merge a cart into itself")
)

// IsValidation reports whether err is a domain validation failure, i.e. the
// request was rejected before any mutation and the cart is unchanged.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNegativeQuantity) ||
		errors.Is(err, ErrUnknownCoupon) ||
		errors.Is(err, ErrShipmentNotEligible) ||
		errors.Is(err, ErrPaymentNotEligible) ||
		errors.Is(err, ErrSelfMerge)
}
