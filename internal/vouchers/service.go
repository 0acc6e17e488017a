package vouchers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/internal/cart"
	"github.com/oakline/marketplace-backend/pkg/enums"
	"github.com/oakline/marketplace-backend/pkg/errors"

	"github.com/google/uuid"
)

var oneHundred = decimal.NewFromInt(100)

// Service validates voucher codes against line items. The same validation
// runs twice per order: once for preview and once more inside the order
// transaction, re-reading the voucher row live.
type Service interface {
	Validate(ctx context.Context, repo Repository, code string, items []cart.LineItem) (*ValidationResult, error)
	Preview(ctx context.Context, buyerID uuid.UUID, code string) (*ValidationResult, error)
}

type service struct {
	repo  Repository
	carts cart.Repository
}

func NewService(repo Repository, carts cart.Repository) Service {
	return &service{repo: repo, carts: carts}
}

// Preview validates a code against the buyer's current cart outside any
// transaction. The result is advisory; the order transaction re-validates.
func (s *service) Preview(ctx context.Context, buyerID uuid.UUID, code string) (*ValidationResult, error) {
	items, err := s.carts.LiveItems(ctx, buyerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load cart items")
	}
	return s.Validate(ctx, s.repo, code, items)
}

func (s *service) Validate(ctx context.Context, repo Repository, code string, items []cart.LineItem) (*ValidationResult, error) {
	if repo == nil {
		repo = s.repo
	}
	voucher, err := repo.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return rejected(ReasonNotFound), nil
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "look up voucher")
	}

	if !eligible(voucher.Status, voucher.ExpiresAt, voucher.UsageLimit, voucher.UsedCount) {
		return rejected(ReasonIneligible), nil
	}

	sellerSubtotal := decimal.Zero
	for _, item := range items {
		if item.SellerID == voucher.SellerID {
			sellerSubtotal = sellerSubtotal.Add(item.Subtotal())
		}
	}
	if sellerSubtotal.IsZero() {
		return rejected(ReasonNotApplicable), nil
	}

	var discount decimal.Decimal
	switch voucher.DiscountType {
	case enums.DiscountTypePercentage:
		discount = sellerSubtotal.Mul(voucher.DiscountValue).Div(oneHundred)
	case enums.DiscountTypeFixed:
		discount = voucher.DiscountValue
	default:
		return nil, errors.New(errors.CodeInternal, "unknown discount type")
	}
	discount = clamp(discount, sellerSubtotal)

	return &ValidationResult{
		Applicable:     true,
		VoucherID:      voucher.ID,
		SellerID:       voucher.SellerID,
		Discount:       discount.Round(2),
		SellerSubtotal: sellerSubtotal,
	}, nil
}

func eligible(status enums.VoucherStatus, expiresAt *time.Time, usageLimit *int, usedCount int) bool {
	if status != enums.VoucherStatusActive {
		return false
	}
	if expiresAt != nil && expiresAt.Before(startOfToday()) {
		return false
	}
	if usageLimit != nil && usedCount >= *usageLimit {
		return false
	}
	return true
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func clamp(discount, ceiling decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(ceiling) {
		return ceiling
	}
	return discount
}

func rejected(reason string) *ValidationResult {
	return &ValidationResult{Applicable: false, Reason: reason, Discount: decimal.Zero, SellerSubtotal: decimal.Zero}
}
