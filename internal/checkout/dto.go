package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakline/marketplace-backend/internal/checkout/pricing"
	"github.com/oakline/marketplace-backend/pkg/types"
)

// PlaceOrderInput is the checkout request body. PaymentSourceID is the
// gateway payment token and is required only for gateway settlement.
type PlaceOrderInput struct {
	PaymentMethod   string        `json:"payment_method" validate:"required,oneof=cod gateway"`
	VoucherCode     string        `json:"voucher_code,omitempty" validate:"omitempty,max=64"`
	PaymentSourceID string        `json:"payment_source_id,omitempty" validate:"omitempty,max=128"`
	ShippingAddress types.Address `json:"shipping_address"`
}

// PlaceOrderResult is returned to the buyer after the order commits.
// GatewayRef is set only for gateway settlement, where payment completes
// asynchronously through the capture webhook.
type PlaceOrderResult struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Total          decimal.Decimal `json:"total"`
	VoucherApplied bool            `json:"voucher_applied"`
	Quote          pricing.Quote   `json:"quote"`
	GatewayRef     string          `json:"gateway_ref,omitempty"`
}
