package models

import (
	"time"

	"gorm.io/gorm"
)

// Settings is the singleton SumUp configuration row. API credentials come
// from the environment; this holds the runtime-mutable toggles.
type Settings struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Enabled          bool   `gorm:"default:false" json:"enabled"`
	MerchantCode     string `gorm:"type:varchar(100)" json:"merchant_code"`
	MerchantCurrency string `gorm:"type:varchar(10)" json:"merchant_currency"`

	// EnableDebugLogging gates debug details in reports, the realtime debug
	// channel and the advanced operations (merchant override, force remove).
	EnableDebugLogging bool `gorm:"default:false" json:"enable_debug_logging"`
	// EnableRecoveryMode gates rebuilding local terminals from SumUp.
	EnableRecoveryMode bool `gorm:"default:false" json:"enable_recovery_mode"`
}
