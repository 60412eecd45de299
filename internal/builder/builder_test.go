package builder

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
	"github.com/afedorov1971/vc-module-cart/internal/evaluator"
)

type fakeShipping struct {
	rates []domain.ShippingRate
	err   error
	seen  evaluator.CartContext
}

func (f *fakeShipping) Evaluate(_ context.Context, cc evaluator.CartContext) ([]domain.ShippingRate, error) {
	f.seen = cc
	return f.rates, f.err
}

type fakePayment struct {
	methods []domain.PaymentMethod
	err     error
}

func (f *fakePayment) Evaluate(context.Context, evaluator.CartContext) ([]domain.PaymentMethod, error) {
	return f.methods, f.err
}

type fakeCoupons struct {
	known map[string]*domain.Coupon
}

func (f *fakeCoupons) Validate(_ context.Context, _ evaluator.CartContext, code string) (*domain.Coupon, error) {
	if c, ok := f.known[code]; ok {
		return c, nil
	}
	return nil, domain.ErrUnknownCoupon
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testDeps() Evaluators {
	return Evaluators{
		Shipping: &fakeShipping{rates: []domain.ShippingRate{
			{MethodCode: "ground", Price: dec("4.99")},
		}},
		Payment: &fakePayment{methods: []domain.PaymentMethod{
			{GatewayCode: "card", Surcharge: dec("0")},
		}},
		Coupons: &fakeCoupons{known: map[string]*domain.Coupon{
			"SAVE10": {Code: "SAVE10", PercentOff: dec("10")},
			"FLAT5":  {Code: "FLAT5", AmountOff: dec("5.00")},
		}},
	}
}

func newCart() *domain.Cart {
	return &domain.Cart{
		ID:         "cart-1",
		StoreID:    "store-1",
		CustomerID: "user-1",
		Name:       "default",
		Currency:   "USD",
	}
}

func TestAddItem_SameProductSumsQuantity(t *testing.T) {
	b := New(newCart(), testDeps())

	for _, qty := range []int{2, 3, 1} {
		err := b.AddItem(domain.LineItem{ProductID: "p1", Quantity: qty, UnitPrice: dec("10")})
		require.NoError(t, err)
	}

	cart := b.Cart()
	require.Len(t, cart.Items, 1, "exactly one line per product key")
	assert.Equal(t, 6, cart.Items[0].Quantity)
	assert.True(t, dec("60").Equal(cart.Items[0].ExtendedPrice))
}

func TestAddItem_DifferentVariantsStaySeparate(t *testing.T) {
	b := New(newCart(), testDeps())

	require.NoError(t, b.AddItem(domain.LineItem{ProductID: "p1", VariantID: "red", Quantity: 1, UnitPrice: dec("10")}))
	require.NoError(t, b.AddItem(domain.LineItem{ProductID: "p1", VariantID: "blue", Quantity: 1, UnitPrice: dec("10")}))

	assert.Len(t, b.Cart().Items, 2)
}

func TestAddItem_NegativeQuantityRejected(t *testing.T) {
	b := New(newCart(), testDeps())

	err := b.AddItem(domain.LineItem{ProductID: "p1", Quantity: -1})
	require.ErrorIs(t, err, domain.ErrNegativeQuantity)
	assert.Empty(t, b.Cart().Items, "cart must be unchanged after rejection")
}

func TestAddItem_ZeroQuantityCreatesNoLine(t *testing.T) {
	b := New(newCart(), testDeps())

	require.NoError(t, b.AddItem(domain.LineItem{ProductID: "p1", Quantity: 0, UnitPrice: dec("10")}))

	assert.Empty(t, b.Cart().Items, "a zero-quantity line must never be persisted")
}

func TestAddItem_ZeroQuantityLeavesExistingLineAlone(t *testing.T) {
	b := New(newCart(), testDeps())
	require.NoError(t, b.AddItem(domain.LineItem{ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}))

	require.NoError(t, b.AddItem(domain.LineItem{ProductID: "p1", Quantity: 0, UnitPrice: dec("10")}))

	cart := b.Cart()
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestChangeItemQuantity_ZeroEqualsRemove(t *testing.T) {
	b := New(newCart(), testDeps())
	require.NoError(t, b.AddItem(domain.LineItem{ID: "li-1", ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}))

	b.ChangeItemQuantity("li-1", 0)

	assert.Empty(t, b.Cart().Items)
}

func TestChangeItemQuantity_SetsExactValue(t *testing.T) {
	b := New(newCart(), testDeps())
	require.NoError(t, b.AddItem(domain.LineItem{ID: "li-1", ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}))

	b.ChangeItemQuantity("li-1", 7)

	assert.Equal(t, 7, b.Cart().Items[0].Quantity, "set, not incremental")
}

func TestChangeItemQuantity_MissingLineIsNoOp(t *testing.T) {
	b := New(newCart(), testDeps())
	require.NoError(t, b.AddItem(domain.LineItem{ID: "li-1", ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}))

	b.ChangeItemQuantity("does-not-exist", 5)

	assert.Equal(t, 2, b.Cart().Items[0].Quantity)
}

func TestRemoveItem_MissingLineReturnsUnchangedCount(t *testing.T) {
	b := New(newCart(), testDeps())
	require.NoError(t, b.AddItem(domain.LineItem{ID: "li-1", ProductID: "p1", Quantity: 1, UnitPrice: dec("10")}))

	count := b.RemoveItem("does-not-exist")

	assert.Equal(t, 1, count)
}

func TestClear_LeavesShipmentsPaymentsCoupon(t *testing.T) {
	cart := newCart()
	cart.Items = []domain.LineItem{{ID: "li-1", ProductID: "p1", Quantity: 1, UnitPrice: dec("10")}}
	cart.Shipments = []domain.Shipment{{ID: "s1", MethodCode: "ground", Price: dec("4.99")}}
	cart.Payments = []domain.Payment{{ID: "pay1", GatewayCode: "card"}}
	cart.Coupon = &domain.Coupon{Code: "SAVE10", PercentOff: dec("10")}

	b := New(cart, testDeps())
	b.Clear()

	got := b.Cart()
	assert.Empty(t, got.Items)
	assert.Len(t, got.Shipments, 1)
	assert.Len(t, got.Payments, 1)
	assert.NotNil(t, got.Coupon)
}

func TestAddCoupon_ReplacesPrevious(t *testing.T) {
	b := New(newCart(), testDeps())
	ctx := context.Background()

	require.NoError(t, b.AddCoupon(ctx, "SAVE10"))
	require.NoError(t, b.AddCoupon(ctx, "FLAT5"))

	require.NotNil(t, b.Cart().Coupon)
	assert.Equal(t, "FLAT5", b.Cart().Coupon.Code)
}

func TestAddCoupon_SameCodeTwiceDoesNotDuplicateDiscount(t *testing.T) {
	cart := newCart()
	cart.Items = []domain.LineItem{{ID: "li-1", ProductID: "p1", Quantity: 1, UnitPrice: dec("100.00")}}
	b := New(cart, testDeps())
	ctx := context.Background()

	require.NoError(t, b.AddCoupon(ctx, "SAVE10"))
	require.NoError(t, b.AddCoupon(ctx, "SAVE10"))

	assert.True(t, dec("10.00").Equal(b.Cart().Totals.DiscountTotal))
}

func TestAddCoupon_UnknownCodeRejected(t *testing.T) {
	b := New(newCart(), testDeps())

	err := b.AddCoupon(context.Background(), "NOPE")
	require.ErrorIs(t, err, domain.ErrUnknownCoupon)
	assert.Nil(t, b.Cart().Coupon)
}

func TestAddOrUpdateShipment_UpsertsByID(t *testing.T) {
	b := New(newCart(), testDeps())
	ctx := context.Background()

	require.NoError(t, b.AddOrUpdateShipment(ctx, domain.Shipment{ID: "s1", MethodCode: "ground", Destination: "Helsinki"}))
	require.NoError(t, b.AddOrUpdateShipment(ctx, domain.Shipment{ID: "s1", MethodCode: "ground", Destination: "Tampere"}))

	cart := b.Cart()
	require.Len(t, cart.Shipments, 1)
	assert.Equal(t, "Tampere", cart.Shipments[0].Destination)
	assert.True(t, dec("4.99").Equal(cart.Shipments[0].Price), "evaluator price is authoritative")
}

func TestAddOrUpdateShipment_EvaluatesIncomingDestination(t *testing.T) {
	shipping := &fakeShipping{rates: []domain.ShippingRate{{MethodCode: "ground", Price: dec("4.99")}}}
	deps := testDeps()
	deps.Shipping = shipping
	cart := newCart()
	cart.Shipments = []domain.Shipment{{ID: "s1", MethodCode: "ground", Destination: "Helsinki"}}
	b := New(cart, deps)

	err := b.AddOrUpdateShipment(context.Background(), domain.Shipment{ID: "s1", MethodCode: "ground", Destination: "Oulu"})
	require.NoError(t, err)

	assert.Equal(t, "Oulu", shipping.seen.Destination,
		"eligibility must be checked against the destination being set, not the one already stored")
}

func TestAddOrUpdateShipment_IneligibleMethodRejected(t *testing.T) {
	b := New(newCart(), testDeps())

	err := b.AddOrUpdateShipment(context.Background(), domain.Shipment{MethodCode: "drone"})
	require.ErrorIs(t, err, domain.ErrShipmentNotEligible)
	assert.Empty(t, b.Cart().Shipments)
}

func TestAddOrUpdateShipment_EvaluatorFailureSurfaced(t *testing.T) {
	deps := testDeps()
	deps.Shipping = &fakeShipping{err: fmt.Errorf("evaluator unavailable")}
	b := New(newCart(), deps)

	err := b.AddOrUpdateShipment(context.Background(), domain.Shipment{MethodCode: "ground"})
	require.ErrorContains(t, err, "evaluator unavailable")
}

func TestAddOrUpdatePayment_IneligibleGatewayRejected(t *testing.T) {
	b := New(newCart(), testDeps())

	err := b.AddOrUpdatePayment(context.Background(), domain.Payment{GatewayCode: "crypto"})
	require.ErrorIs(t, err, domain.ErrPaymentNotEligible)
	assert.Empty(t, b.Cart().Payments)
}

func TestMergeWithCart_SumsQuantitiesByProductKey(t *testing.T) {
	target := newCart()
	target.Items = []domain.LineItem{{ID: "li-1", ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}}

	other := &domain.Cart{
		ID:    "anon-cart",
		Items: []domain.LineItem{{ID: "li-x", ProductID: "p1", Quantity: 3, UnitPrice: dec("10")}},
	}

	b := New(target, testDeps()).MergeWithCart(other)

	cart := b.Cart()
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, "cart-1", cart.ID, "target identity preserved")
}

func TestMergeWithCart_TargetKeepsOwnShipmentOnIDCollision(t *testing.T) {
	target := newCart()
	target.Shipments = []domain.Shipment{{ID: "s1", MethodCode: "ground", Destination: "Helsinki"}}

	other := &domain.Cart{
		Shipments: []domain.Shipment{
			{ID: "s1", MethodCode: "express", Destination: "Oslo"},
			{ID: "s2", MethodCode: "pickup"},
		},
		Payments: []domain.Payment{{ID: "pay1", GatewayCode: "card"}},
	}

	cart := New(target, testDeps()).MergeWithCart(other).Cart()

	require.Len(t, cart.Shipments, 2)
	assert.Equal(t, "ground", cart.Shipments[0].MethodCode, "target wins on id collision")
	assert.Len(t, cart.Payments, 1)
}

func TestMergeWithCart_CouponAdoptedOnlyWhenTargetHasNone(t *testing.T) {
	other := &domain.Cart{Coupon: &domain.Coupon{Code: "FLAT5", AmountOff: dec("5.00")}}

	target := newCart()
	cart := New(target, testDeps()).MergeWithCart(other).Cart()
	require.NotNil(t, cart.Coupon)
	assert.Equal(t, "FLAT5", cart.Coupon.Code)

	target2 := newCart()
	target2.Coupon = &domain.Coupon{Code: "SAVE10", PercentOff: dec("10")}
	cart2 := New(target2, testDeps()).MergeWithCart(other).Cart()
	assert.Equal(t, "SAVE10", cart2.Coupon.Code)
}

func TestMergeWithCart_NilOtherIsNoOp(t *testing.T) {
	target := newCart()
	target.Items = []domain.LineItem{{ID: "li-1", ProductID: "p1", Quantity: 2, UnitPrice: dec("10")}}

	cart := New(target, testDeps()).MergeWithCart(nil).Cart()
	assert.Len(t, cart.Items, 1)
}

func TestMergeWithCart_ZeroQuantitySourceLineNotAdopted(t *testing.T) {
	other := newCart()
	other.Items = []domain.LineItem{{ID: "li-9", ProductID: "p9", Quantity: 0, UnitPrice: dec("10")}}

	cart := New(newCart(), testDeps()).MergeWithCart(other).Cart()
	assert.Empty(t, cart.Items)
}

func TestGetAvailableShippingRates_DoesNotMutateCart(t *testing.T) {
	cart := newCart()
	cart.Items = []domain.LineItem{{ID: "li-1", ProductID: "p1", Quantity: 1, UnitPrice: dec("10")}}
	b := New(cart, testDeps())

	rates, err := b.GetAvailableShippingRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Len(t, cart.Items, 1)
	assert.Empty(t, cart.Shipments)
}
