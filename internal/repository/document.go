package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

// Monetary values are stored as canonical decimal strings; BSON has no codec
// for decimal.Decimal and float64 would drift across recomputations.

type cartDoc struct {
	ID          string        `bson:"_id"`
	StoreID     string        `bson:"store_id"`
	CustomerID  string        `bson:"customer_id"`
	Name        string        `bson:"name"`
	Currency    string        `bson:"currency"`
	CultureName string        `bson:"culture_name"`
	Items       []lineItemDoc `bson:"items,omitempty"`
	Coupon      *couponDoc    `bson:"coupon,omitempty"`
	Shipments   []shipmentDoc `bson:"shipments,omitempty"`
	Payments    []paymentDoc  `bson:"payments,omitempty"`
	TaxRate     string        `bson:"tax_rate"`
	Totals      totalsDoc     `bson:"totals"`
	Version     int64         `bson:"version"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
	DeletedAt   *time.Time    `bson:"deleted_at,omitempty"`
}

type lineItemDoc struct {
	ID            string    `bson:"id"`
	ProductID     string    `bson:"product_id"`
	VariantID     string    `bson:"variant_id,omitempty"`
	ProductName   string    `bson:"product_name"`
	Quantity      int       `bson:"quantity"`
	UnitPrice     string    `bson:"unit_price"`
	ExtendedPrice string    `bson:"extended_price"`
	AddedAt       time.Time `bson:"added_at"`
}

type shipmentDoc struct {
	ID          string `bson:"id"`
	MethodCode  string `bson:"method_code"`
	Destination string `bson:"destination"`
	Price       string `bson:"price"`
}

type paymentDoc struct {
	ID          string `bson:"id"`
	GatewayCode string `bson:"gateway_code"`
	Surcharge   string `bson:"surcharge"`
}

type couponDoc struct {
	Code       string `bson:"code"`
	PercentOff string `bson:"percent_off"`
	AmountOff  string `bson:"amount_off"`
}

type totalsDoc struct {
	SubTotal      string `bson:"sub_total"`
	DiscountTotal string `bson:"discount_total"`
	TaxTotal      string `bson:"tax_total"`
	ShippingTotal string `bson:"shipping_total"`
	PaymentTotal  string `bson:"payment_total"`
	GrandTotal    string `bson:"grand_total"`
}

func toDoc(cart *domain.Cart) *cartDoc {
	doc := &cartDoc{
		ID:          cart.ID,
		StoreID:     cart.StoreID,
		CustomerID:  cart.CustomerID,
		Name:        cart.Name,
		Currency:    cart.Currency,
		CultureName: cart.CultureName,
		TaxRate:     cart.TaxRate.String(),
		Totals: totalsDoc{
			SubTotal:      cart.Totals.SubTotal.String(),
			DiscountTotal: cart.Totals.DiscountTotal.String(),
			TaxTotal:      cart.Totals.TaxTotal.String(),
			ShippingTotal: cart.Totals.ShippingTotal.String(),
			PaymentTotal:  cart.Totals.PaymentTotal.String(),
			GrandTotal:    cart.Totals.GrandTotal.String(),
		},
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		DeletedAt: cart.DeletedAt,
	}

	for _, item := range cart.Items {
		doc.Items = append(doc.Items, lineItemDoc{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice.String(),
			ExtendedPrice: item.ExtendedPrice.String(),
			AddedAt:       item.AddedAt,
		})
	}
	for _, s := range cart.Shipments {
		doc.Shipments = append(doc.Shipments, shipmentDoc{
			ID:          s.ID,
			MethodCode:  s.MethodCode,
			Destination: s.Destination,
			Price:       s.Price.String(),
		})
	}
	for _, p := range cart.Payments {
		doc.Payments = append(doc.Payments, paymentDoc{
			ID:          p.ID,
			GatewayCode: p.GatewayCode,
			Surcharge:   p.Surcharge.String(),
		})
	}
	if cart.Coupon != nil {
		doc.Coupon = &couponDoc{
			Code:       cart.Coupon.Code,
			PercentOff: cart.Coupon.PercentOff.String(),
			AmountOff:  cart.Coupon.AmountOff.String(),
		}
	}
	return doc
}

func fromDoc(doc *cartDoc) *domain.Cart {
	cart := &domain.Cart{
		ID:          doc.ID,
		StoreID:     doc.StoreID,
		CustomerID:  doc.CustomerID,
		Name:        doc.Name,
		Currency:    doc.Currency,
		CultureName: doc.CultureName,
		TaxRate:     parseDecimal(doc.TaxRate),
		Totals: domain.Totals{
			SubTotal:      parseDecimal(doc.Totals.SubTotal),
			DiscountTotal: parseDecimal(doc.Totals.DiscountTotal),
			TaxTotal:      parseDecimal(doc.Totals.TaxTotal),
			ShippingTotal: parseDecimal(doc.Totals.ShippingTotal),
			PaymentTotal:  parseDecimal(doc.Totals.PaymentTotal),
			GrandTotal:    parseDecimal(doc.Totals.GrandTotal),
		},
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		DeletedAt: doc.DeletedAt,
	}

	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.LineItem{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			UnitPrice:     parseDecimal(item.UnitPrice),
			ExtendedPrice: parseDecimal(item.ExtendedPrice),
			AddedAt:       item.AddedAt,
		})
	}
	for _, s := range doc.Shipments {
		cart.Shipments = append(cart.Shipments, domain.Shipment{
			ID:          s.ID,
			MethodCode:  s.MethodCode,
			Destination: s.Destination,
			Price:       parseDecimal(s.Price),
		})
	}
	for _, p := range doc.Payments {
		cart.Payments = append(cart.Payments, domain.Payment{
			ID:          p.ID,
			GatewayCode: p.GatewayCode,
			Surcharge:   parseDecimal(p.Surcharge),
		})
	}
	if doc.Coupon != nil {
		cart.Coupon = &domain.Coupon{
			Code:       doc.Coupon.Code,
			PercentOff: parseDecimal(doc.Coupon.PercentOff),
			AmountOff:  parseDecimal(doc.Coupon.AmountOff),
		}
	}
	return cart
}

// parseDecimal tolerates empty fields on documents written before a field
// existed; toDoc always writes canonical strings.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
