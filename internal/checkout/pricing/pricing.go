package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/oakline/marketplace-backend/internal/cart"
	"github.com/oakline/marketplace-backend/pkg/db/models"
)

// taxRate is a fixed 3% and deliberately not configurable.
var taxRate = decimal.NewFromFloat(0.03)

// Quote is a deterministic pricing breakdown. Computing it has no side
// effects, so preview and final commit reuse the same function.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Tax returns the platform tax due on a subtotal, rounded to cents. Every
// recompute of an order's totals goes through this so the rate lives in
// exactly one place.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(taxRate).Round(2)
}

// Compute prices a set of line items. Shipping resolution order is free
// shipping first, then the flat rate when the cart is non-empty.
func Compute(items []cart.LineItem, discount decimal.Decimal, settings *models.SiteSettings) Quote {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}

	tax := Tax(subtotal)

	shipping := decimal.Zero
	if settings != nil && !settings.FreeShipping && settings.FlatShipping && subtotal.IsPositive() {
		shipping = settings.FlatRateAmount
	}

	discounted := subtotal.Sub(discount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	return Quote{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Tax:      tax,
		Shipping: shipping.Round(2),
		Total:    discounted.Add(tax).Add(shipping).Round(2),
	}
}
