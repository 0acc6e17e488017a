package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/pkg/db/models"
)

// LineItem is the ephemeral checkout view of one cart row. Price and seller
// come from the live variant, never from anything the caller supplied.
type LineItem struct {
	VariantID uuid.UUID       `gorm:"column:variant_id"`
	SellerID  uuid.UUID       `gorm:"column:seller_id"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price"`
	Quantity  int             `gorm:"column:quantity"`
}

// Subtotal returns unit price times quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Repository is the Cart Store collaborator surface used by checkout.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LiveItems(ctx context.Context, buyerID uuid.UUID) ([]LineItem, error)
	Clear(ctx context.Context, buyerID uuid.UUID, variantIDs []uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository backed by the provided DB handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LiveItems joins cart rows against the live variant so the checkout
// transaction always prices against current data.
func (r *repository) LiveItems(ctx context.Context, buyerID uuid.UUID) ([]LineItem, error) {
	var rows []LineItem
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.variant_id AS variant_id, product_variants.seller_id AS seller_id, product_variants.price AS unit_price, cart_items.quantity AS quantity").
		Joins("JOIN product_variants ON product_variants.id = cart_items.variant_id").
		Where("cart_items.buyer_id = ?", buyerID).
		Order("cart_items.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Clear(ctx context.Context, buyerID uuid.UUID, variantIDs []uuid.UUID) error {
	if len(variantIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("buyer_id = ? AND variant_id IN ?", buyerID, variantIDs).
		Delete(&models.CartItem{}).Error
}
