package models

import (
	"time"

	"gorm.io/gorm"
)

// DocStatus tracks the host-side submission state of an invoice.
type DocStatus string

const (
	DocStatusDraft     DocStatus = "Draft"
	DocStatusSubmitted DocStatus = "Submitted"
	// DocStatusPaidNotFinalized marks an invoice whose card payment was
	// captured but whose submission could not be completed afterwards. It
	// needs operator attention; the capture is never undone automatically.
	DocStatusPaidNotFinalized DocStatus = "Paid Not Finalized"
)

// Invoice is a POS sale document. A return invoice references the sale it
// refunds through ReturnAgainstID.
type Invoice struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	POSProfileID uint      `gorm:"index" json:"pos_profile_id"`
	Currency     string    `gorm:"type:varchar(10)" json:"currency"`
	GrandTotal   float64   `gorm:"type:decimal(15,2)" json:"grand_total"`
	DocStatus    DocStatus `gorm:"type:varchar(30);default:'Draft'" json:"doc_status"`

	IsReturn        bool  `gorm:"default:false" json:"is_return"`
	ReturnAgainstID *uint `gorm:"index" json:"return_against_id"`

	// Card payment state, written by the payment session and status checks.
	CardStatus          PaymentStatus `gorm:"type:varchar(20)" json:"card_status"`
	ClientTransactionID string        `gorm:"type:varchar(100)" json:"client_transaction_id"`
	TransactionID       string        `gorm:"type:varchar(100)" json:"transaction_id"`
	CardAmount          float64       `gorm:"type:decimal(15,2)" json:"card_amount"`
	CardCurrency        string        `gorm:"type:varchar(10)" json:"card_currency"`

	// Refund state. On a sale RefundAmount accumulates the total refunded
	// against it; on a return it is the amount of that refund attempt.
	RefundStatus PaymentStatus `gorm:"type:varchar(20)" json:"refund_status"`
	RefundAmount float64       `gorm:"type:decimal(15,2)" json:"refund_amount"`

	// Relationships
	POSProfile    POSProfile       `gorm:"foreignKey:POSProfileID" json:"pos_profile,omitempty"`
	ReturnAgainst *Invoice         `gorm:"foreignKey:ReturnAgainstID" json:"return_against,omitempty"`
	Payments      []InvoicePayment `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
}

// RefundableTotal is the absolute invoice total, used for return refunds.
func (i Invoice) RefundableTotal() float64 {
	if i.GrandTotal < 0 {
		return -i.GrandTotal
	}
	return i.GrandTotal
}

// InvoicePayment is one payment instrument row on an invoice.
type InvoicePayment struct {
	ID            uint    `gorm:"primarykey" json:"id"`
	InvoiceID     uint    `gorm:"index" json:"invoice_id"`
	ModeOfPayment string  `gorm:"type:varchar(100)" json:"mode_of_payment"`
	Amount        float64 `gorm:"type:decimal(15,2)" json:"amount"`
}
