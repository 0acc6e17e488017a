package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakline/marketplace-backend/pkg/enums"
)

// OrderItem snapshots one cart line at checkout. SellerID is a lookup-only
// reference copied from the variant so a multi-seller order stays flat.
type OrderItem struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID uuid.UUID        `gorm:"column:variant_id;type:uuid;not null"`
	SellerID  uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	Quantity  int              `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Status    enums.ItemStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
