package models

import (
	"time"

	"gorm.io/gorm"
)

// Terminal mirrors a SumUp card reader registered with the merchant account.
// Local rows are created by pairing or recovery and removed by the remove
// operations; statuses are refreshed from the SumUp API.
type Terminal struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TerminalID   string `gorm:"type:varchar(100);uniqueIndex" json:"terminal_id"` // reader id at SumUp
	TerminalName string `gorm:"type:varchar(255);index" json:"terminal_name"`
	Enabled      bool   `gorm:"default:true" json:"enabled"`
	MerchantCode string `gorm:"type:varchar(100)" json:"merchant_code"` // set when pairing used an override

	ConnectionStatus ConnectionStatus `gorm:"type:varchar(50);default:'Unknown'" json:"connection_status"`
	OnlineStatus     OnlineStatus     `gorm:"type:varchar(50);default:'Unknown'" json:"online_status"`
	ActivityStatus   ActivityStatus   `gorm:"type:varchar(50);default:'Unknown'" json:"activity_status"`
}
