package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResponseGroup selects which sub-collections of a cart are populated on load.
type ResponseGroup uint8

const (
	WithItems ResponseGroup = 1 << iota
	WithShipments
	WithPayments

	// Default loads only the cart header and totals.
	Default ResponseGroup = 0
	Full                  = WithItems | WithShipments | WithPayments
)

func (rg ResponseGroup) Has(flag ResponseGroup) bool {
	return rg&flag == flag
}

// CartKey is the business tuple identifying a customer's "current" cart.
// It is distinct from the storage id and used only for get-or-create lookup.
type CartKey struct {
	StoreID     string `json:"store_id"`
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	CultureName string `json:"culture_name"`
}

type Cart struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	CustomerID  string     `json:"customer_id"`
	Name        string     `json:"name"`
	Currency    string     `json:"currency"`
	CultureName string     `json:"culture_name"`
	Items       []LineItem `json:"items"`
	Coupon      *Coupon    `json:"coupon,omitempty"`
	Shipments   []Shipment `json:"shipments"`
	Payments    []Payment  `json:"payments"`

	// TaxRate is a percentage supplied by store tax policy, applied to the
	// discounted subtotal during totals recomputation.
	TaxRate decimal.Decimal `json:"tax_rate"`

	Totals    Totals     `json:"totals"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Key returns the business tuple of the cart.
func (c *Cart) Key() CartKey {
	return CartKey{
		StoreID:     c.StoreID,
		CustomerID:  c.CustomerID,
		Name:        c.Name,
		Currency:    c.Currency,
		CultureName: c.CultureName,
	}
}

type LineItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	// ExtendedPrice is derived (unit price x quantity) on every recomputation.
	ExtendedPrice decimal.Decimal `json:"extended_price"`
	AddedAt       time.Time       `json:"added_at"`
}

// MergeKey identifies the product/variation a line item holds; items with the
// same merge key collapse into a single line with summed quantity.
func (li LineItem) MergeKey() string {
	return li.ProductID + "/" + li.VariantID
}

type Shipment struct {
	ID          string          `json:"id"`
	MethodCode  string          `json:"method_code"`
	Destination string          `json:"destination"`
	Price       decimal.Decimal `json:"price"`
}

type Payment struct {
	ID          string          `json:"id"`
	GatewayCode string          `json:"gateway_code"`
	Surcharge   decimal.Decimal `json:"surcharge"`
}

// Coupon is a validated discount as resolved by the coupon collaborator.
// Exactly one of PercentOff / AmountOff is expected to be non-zero.
type Coupon struct {
	Code       string          `json:"code"`
	PercentOff decimal.Decimal `json:"percent_off"`
	AmountOff  decimal.Decimal `json:"amount_off"`
}

type Totals struct {
	SubTotal      decimal.Decimal `json:"sub_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	PaymentTotal  decimal.Decimal `json:"payment_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

func (t Totals) Equal(other Totals) bool {
	return t.SubTotal.Equal(other.SubTotal) &&
		t.DiscountTotal.Equal(other.DiscountTotal) &&
		t.TaxTotal.Equal(other.TaxTotal) &&
		t.ShippingTotal.Equal(other.ShippingTotal) &&
		t.PaymentTotal.Equal(other.PaymentTotal) &&
		t.GrandTotal.Equal(other.GrandTotal)
}

// ShippingRate is a shipping option currently eligible for a cart.
type ShippingRate struct {
	MethodCode string          `json:"method_code"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
}

// PaymentMethod is a payment option currently eligible for a cart.
type PaymentMethod struct {
	GatewayCode string          `json:"gateway_code"`
	Name        string          `json:"name"`
	Surcharge   decimal.Decimal `json:"surcharge"`
}
