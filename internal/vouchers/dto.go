package vouchers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rejection reasons reported by Validate.
const (
	ReasonNotFound      = "not-found"
	ReasonIneligible    = "ineligible"
	ReasonNotApplicable = "not-applicable"
)

// ValidationResult reports the outcome of validating a code against a set of
// line items. When Applicable is false, Reason carries one of the Reason
// constants and the money fields are zero.
type ValidationResult struct {
	Applicable     bool            `json:"applicable"`
	Reason         string          `json:"reason,omitempty"`
	VoucherID      uuid.UUID       `json:"voucher_id,omitempty"`
	SellerID       uuid.UUID       `json:"seller_id,omitempty"`
	Discount       decimal.Decimal `json:"discount"`
	SellerSubtotal decimal.Decimal `json:"seller_subtotal"`
}

// ValidateRequest is the preview endpoint body.
type ValidateRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}
