package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
	"github.com/afedorov1971/vc-module-cart/internal/evaluator"
	"github.com/afedorov1971/vc-module-cart/internal/pricing"
)

// Evaluators are the external collaborators the builder consults before
// accepting coupons, shipments and payments.
type Evaluators struct {
	Shipping evaluator.ShippingEvaluator
	Payment  evaluator.PaymentEvaluator
	Coupons  evaluator.CouponValidator
}

// Builder is a mutation session over one loaded cart. It must only be used
// inside the keyed critical section for that cart; read-only operations
// (available rates/methods) are the exception and take no lock.
type Builder struct {
	cart *domain.Cart
	deps Evaluators
}

func New(cart *domain.Cart, deps Evaluators) *Builder {
	return &Builder{cart: cart, deps: deps}
}

// Cart returns the session cart with totals recomputed from current state.
func (b *Builder) Cart() *domain.Cart {
	pricing.Recalculate(b.cart)
	return b.cart
}

// AddItem merges the incoming item into an existing line with the same
// product/variation key by summing quantities, or appends a new line.
// Quantity <= 0 never survives: negative rejects, zero never creates a line.
func (b *Builder) AddItem(item domain.LineItem) error {
	if item.Quantity < 0 {
		return fmt.Errorf("%w: got %d", domain.ErrNegativeQuantity, item.Quantity)
	}

	for i := range b.cart.Items {
		if b.cart.Items[i].MergeKey() == item.MergeKey() {
			b.cart.Items[i].Quantity += item.Quantity
			if b.cart.Items[i].Quantity <= 0 {
				b.cart.Items = append(b.cart.Items[:i], b.cart.Items[i+1:]...)
			}
			return nil
		}
	}

	if item.Quantity == 0 {
		return nil
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.AddedAt = time.Now()
	b.cart.Items = append(b.cart.Items, item)
	return nil
}

// ChangeItemQuantity sets the exact quantity of a line item. Quantity <= 0
// removes the line. A missing line item is a no-op so client retries stay
// idempotent.
func (b *Builder) ChangeItemQuantity(lineItemID string, quantity int) {
	if quantity <= 0 {
		b.RemoveItem(lineItemID)
		return
	}
	for i := range b.cart.Items {
		if b.cart.Items[i].ID == lineItemID {
			b.cart.Items[i].Quantity = quantity
			return
		}
	}
}

// RemoveItem removes the line if present and returns the resulting item count.
func (b *Builder) RemoveItem(lineItemID string) int {
	for i, item := range b.cart.Items {
		if item.ID == lineItemID {
			b.cart.Items = append(b.cart.Items[:i], b.cart.Items[i+1:]...)
			break
		}
	}
	return len(b.cart.Items)
}

// Clear removes all line items. Shipments, payments and the coupon stay.
func (b *Builder) Clear() {
	b.cart.Items = []domain.LineItem{}
}

// AddCoupon validates the code against the promotion collaborator and applies
// it, replacing any previously applied coupon. Applying the same code twice
// does not duplicate the discount.
func (b *Builder) AddCoupon(ctx context.Context, code string) error {
	coupon, err := b.deps.Coupons.Validate(ctx, evaluator.ContextFrom(b.cart), code)
	if err != nil {
		return err
	}
	b.cart.Coupon = coupon
	return nil
}

func (b *Builder) RemoveCoupon() {
	b.cart.Coupon = nil
}

// AddOrUpdateShipment upserts the shipment by id after checking its method is
// currently eligible. The evaluator's rate price is authoritative.
func (b *Builder) AddOrUpdateShipment(ctx context.Context, shipment domain.Shipment) error {
	// Eligibility depends on where this shipment is going, not on whatever
	// destination an earlier shipment carried.
	cc := evaluator.ContextFrom(b.cart)
	cc.Destination = shipment.Destination
	rates, err := b.deps.Shipping.Evaluate(ctx, cc)
	if err != nil {
		return fmt.Errorf("failed to evaluate shipping rates: %w", err)
	}

	matched := false
	for _, rate := range rates {
		if rate.MethodCode == shipment.MethodCode {
			shipment.Price = rate.Price
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: method %q", domain.ErrShipmentNotEligible, shipment.MethodCode)
	}

	if shipment.ID == "" {
		shipment.ID = uuid.NewString()
	}
	for i := range b.cart.Shipments {
		if b.cart.Shipments[i].ID == shipment.ID {
			b.cart.Shipments[i] = shipment
			return nil
		}
	}
	b.cart.Shipments = append(b.cart.Shipments, shipment)
	return nil
}

// AddOrUpdatePayment upserts the payment by id after checking its gateway is
// currently eligible. The evaluator's surcharge is authoritative.
func (b *Builder) AddOrUpdatePayment(ctx context.Context, payment domain.Payment) error {
	methods, err := b.deps.Payment.Evaluate(ctx, evaluator.ContextFrom(b.cart))
	if err != nil {
		return fmt.Errorf("failed to evaluate payment methods: %w", err)
	}

	matched := false
	for _, method := range methods {
		if method.GatewayCode == payment.GatewayCode {
			payment.Surcharge = method.Surcharge
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: gateway %q", domain.ErrPaymentNotEligible, payment.GatewayCode)
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	for i := range b.cart.Payments {
		if b.cart.Payments[i].ID == payment.ID {
			b.cart.Payments[i] = payment
			return nil
		}
	}
	b.cart.Payments = append(b.cart.Payments, payment)
	return nil
}

// MergeWithCart folds another cart into the session cart in place. Line item
// quantities are summed by product/variation key; the target keeps its own
// shipments and payments when ids collide; the coupon is adopted only when
// the target has none. The target cart's identity is preserved and the other
// cart's identity is discarded.
func (b *Builder) MergeWithCart(other *domain.Cart) *Builder {
	if other == nil {
		return b
	}

	for _, item := range other.Items {
		found := false
		for i := range b.cart.Items {
			if b.cart.Items[i].MergeKey() == item.MergeKey() {
				b.cart.Items[i].Quantity += item.Quantity
				found = true
				break
			}
		}
		if !found && item.Quantity > 0 {
			item.ID = uuid.NewString()
			b.cart.Items = append(b.cart.Items, item)
		}
	}

	for _, shipment := range other.Shipments {
		if !b.hasShipment(shipment.ID) {
			b.cart.Shipments = append(b.cart.Shipments, shipment)
		}
	}
	for _, payment := range other.Payments {
		if !b.hasPayment(payment.ID) {
			b.cart.Payments = append(b.cart.Payments, payment)
		}
	}

	if b.cart.Coupon == nil {
		b.cart.Coupon = other.Coupon
	}
	return b
}

func (b *Builder) hasShipment(id string) bool {
	for _, s := range b.cart.Shipments {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (b *Builder) hasPayment(id string) bool {
	for _, p := range b.cart.Payments {
		if p.ID == id {
			return true
		}
	}
	return false
}

// GetAvailableShippingRates evaluates current cart contents against the
// shipping collaborator. Read-only; never mutates cart state.
func (b *Builder) GetAvailableShippingRates(ctx context.Context) ([]domain.ShippingRate, error) {
	return b.deps.Shipping.Evaluate(ctx, evaluator.ContextFrom(b.cart))
}

// GetAvailablePaymentMethods evaluates current cart contents against the
// payment collaborator. Read-only; never mutates cart state.
func (b *Builder) GetAvailablePaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return b.deps.Payment.Evaluate(ctx, evaluator.ContextFrom(b.cart))
}
