package models

// PaymentStatus is the lifecycle status of a card payment or refund as
// reported by SumUp. Anything outside the final set keeps a session alive.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// Final reports whether the status ends a payment session.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentStatusSuccessful, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}
