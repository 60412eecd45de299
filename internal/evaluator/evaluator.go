package evaluator

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

// CartContext is the slice of cart state the external evaluators need to
// decide which options are currently eligible.
type CartContext struct {
	StoreID     string          `json:"store_id"`
	CustomerID  string          `json:"customer_id"`
	Currency    string          `json:"currency"`
	CultureName string          `json:"culture_name"`
	Destination string          `json:"destination,omitempty"`
	ItemCount   int             `json:"item_count"`
	SubTotal    decimal.Decimal `json:"sub_total"`
}

// ContextFrom builds the evaluation context from a cart snapshot. Destination
// comes from the first shipment, when one is present.
func ContextFrom(cart *domain.Cart) CartContext {
	cc := CartContext{
		StoreID:     cart.StoreID,
		CustomerID:  cart.CustomerID,
		Currency:    cart.Currency,
		CultureName: cart.CultureName,
		ItemCount:   len(cart.Items),
		SubTotal:    cart.Totals.SubTotal,
	}
	if len(cart.Shipments) > 0 {
		cc.Destination = cart.Shipments[0].Destination
	}
	return cc
}

// ShippingEvaluator yields the shipping rates currently valid for a cart.
// An empty result is a valid outcome ("no options"). Results must not be
// cached between calls since cart contents change between invocations.
type ShippingEvaluator interface {
	Evaluate(ctx context.Context, cc CartContext) ([]domain.ShippingRate, error)
}

// PaymentEvaluator yields the payment methods currently valid for a cart.
type PaymentEvaluator interface {
	Evaluate(ctx context.Context, cc CartContext) ([]domain.PaymentMethod, error)
}

// CouponValidator resolves a coupon code into its discount terms, or reports
// domain.ErrUnknownCoupon when the code is not valid for the cart.
type CouponValidator interface {
	Validate(ctx context.Context, cc CartContext, code string) (*domain.Coupon, error)
}
