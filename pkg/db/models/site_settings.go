package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SiteSettingsID is the primary key of the only settings row.
const SiteSettingsID = 1

// SiteSettings is the single-row marketplace configuration consumed by
// checkout. Reads go through the short-TTL settings cache.
type SiteSettings struct {
	ID                     int             `gorm:"column:id;primaryKey"`
	FreeShipping           bool            `gorm:"column:free_shipping;not null;default:false"`
	FlatShipping           bool            `gorm:"column:flat_shipping;not null;default:false"`
	FlatRateAmount         decimal.Decimal `gorm:"column:flat_rate_amount;type:numeric(12,2);not null;default:0"`
	CODEnabled             bool            `gorm:"column:cod_enabled;not null;default:true"`
	ExternalPaymentEnabled bool            `gorm:"column:external_payment_enabled;not null;default:true"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
