package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Recalculate re-derives every line item's extended price and the cart's
// totals from current items, coupon, shipments and payments. It touches
// nothing outside the passed cart and is idempotent, so it can run on any
// consistent snapshot.
func Recalculate(cart *domain.Cart) {
	subTotal := decimal.Zero
	for i := range cart.Items {
		qty := decimal.NewFromInt(int64(cart.Items[i].Quantity))
		cart.Items[i].ExtendedPrice = cart.Items[i].UnitPrice.Mul(qty)
		subTotal = subTotal.Add(cart.Items[i].ExtendedPrice)
	}

	discount := discountFor(cart.Coupon, subTotal)
	taxableBase := subTotal.Sub(discount)
	tax := taxableBase.Mul(cart.TaxRate).Div(hundred).RoundBank(2)

	shipping := decimal.Zero
	for _, s := range cart.Shipments {
		shipping = shipping.Add(s.Price)
	}

	payment := decimal.Zero
	for _, p := range cart.Payments {
		payment = payment.Add(p.Surcharge)
	}

	grand := taxableBase.Add(tax).Add(shipping).Add(payment)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	cart.Totals = domain.Totals{
		SubTotal:      subTotal,
		DiscountTotal: discount,
		TaxTotal:      tax,
		ShippingTotal: shipping,
		PaymentTotal:  payment,
		GrandTotal:    grand,
	}
}

// discountFor applies the single active coupon to the subtotal. The result is
// never negative and never exceeds the subtotal.
func discountFor(coupon *domain.Coupon, subTotal decimal.Decimal) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch {
	case coupon.PercentOff.IsPositive():
		discount = subTotal.Mul(coupon.PercentOff).Div(hundred).RoundBank(2)
	case coupon.AmountOff.IsPositive():
		discount = coupon.AmountOff
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(subTotal) {
		return subTotal
	}
	return discount
}
