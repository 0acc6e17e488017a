package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakline/marketplace-backend/pkg/enums"
)

// Voucher is a seller-scoped discount code. Code is stored lowercased and is
// unique. UsedCount only ever increases, through a conditional update that
// refuses to pass the usage limit.
type Voucher struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Code          string              `gorm:"column:code;not null;uniqueIndex"`
	DiscountType  enums.DiscountType  `gorm:"column:discount_type;type:text;not null"`
	DiscountValue decimal.Decimal     `gorm:"column:discount_value;type:numeric(12,2);not null"`
	UsageLimit    *int                `gorm:"column:usage_limit"`
	UsedCount     int                 `gorm:"column:used_count;not null;default:0"`
	ExpiresAt     *time.Time          `gorm:"column:expires_at"`
	Status        enums.VoucherStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
