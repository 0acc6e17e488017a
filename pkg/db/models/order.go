package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakline/marketplace-backend/pkg/enums"
	"github.com/oakline/marketplace-backend/pkg/types"
)

// Order is created exactly once by checkout. TotalAmount is fixed at
// creation; the only recompute path is the administrative seller-removal
// flow. InventoryCommittedAt records when stock was actually reserved so a
// later cancellation knows whether there is anything to release.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID              uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	OrderStatus          enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentMethod        enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus        enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount       decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	TaxAmount            decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	ShippingFee          decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(12,2);not null"`
	TotalAmount          decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	VoucherID            *uuid.UUID          `gorm:"column:voucher_id;type:uuid"`
	ShippingAddress      types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	InventoryCommittedAt *time.Time          `gorm:"column:inventory_committed_at"`
	Items                []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment              *Payment            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
