package models

import (
	"time"

	"gorm.io/gorm"
)

// POSProfile configures a point-of-sale: which payment modes are routed to
// the card terminal and which terminal the profile drives.
type POSProfile struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name       string `gorm:"type:varchar(255);uniqueIndex" json:"name"`
	TerminalID *uint  `gorm:"index" json:"terminal_id"`

	// Relationships
	Terminal *Terminal        `gorm:"foreignKey:TerminalID" json:"terminal,omitempty"`
	Payments []ProfilePayment `gorm:"foreignKey:POSProfileID" json:"payments,omitempty"`
}

// ProfilePayment is one payment mode offered by a profile. UseTerminal flags
// the mode as routed through the SumUp terminal.
type ProfilePayment struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	POSProfileID  uint   `gorm:"index" json:"pos_profile_id"`
	ModeOfPayment string `gorm:"type:varchar(100)" json:"mode_of_payment"`
	UseTerminal   bool   `gorm:"default:false" json:"use_terminal"`
}

// TerminalModes returns the set of payment modes routed to the terminal.
func (p POSProfile) TerminalModes() map[string]bool {
	modes := make(map[string]bool)
	for _, row := range p.Payments {
		if row.UseTerminal {
			modes[row.ModeOfPayment] = true
		}
	}
	return modes
}
