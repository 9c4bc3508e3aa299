package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
)

var (
	ErrRefundOriginalNotPaid = errors.New("the original invoice has no successful sumup payment")
	ErrRefundCurrency        = errors.New("refund currency does not match the original sumup payment")
	ErrRefundExceedsPayment  = errors.New("refund amount exceeds the remaining sumup payment")
	ErrRefundNotRetryable    = errors.New("only a submitted return with a failed sumup refund can be retried")
)

// RefundPrompt is the question the operator has to answer before a refund
// is sent to the gateway.
type RefundPrompt struct {
	InvoiceID     uint    `json:"invoice_id"`
	ReturnAgainst uint    `json:"return_against"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// Confirmer answers a refund prompt. The HTTP layer implements it by
// round-tripping the prompt to the operator.
type Confirmer interface {
	ConfirmRefund(ctx context.Context, prompt RefundPrompt) (bool, error)
}

// RefundPreview says whether a submission needs refund confirmation and,
// when debug logging is on, why.
type RefundPreview struct {
	NeedsConfirmation bool                   `json:"needs_confirmation"`
	Prompt            *RefundPrompt          `json:"prompt,omitempty"`
	DebugDetails      map[string]interface{} `json:"debug_details,omitempty"`
}

// RefundRetryResult is the outcome of retrying a failed refund.
type RefundRetryResult struct {
	Status  models.PaymentStatus `json:"status"`
	Message string               `json:"message"`
}

// RefundGate guards return submissions: it decides whether a refund
// confirmation is needed, remembers affirmative answers so a re-submission
// does not ask twice, and carries out the refund before the document is
// submitted.
type RefundGate struct {
	db     *gorm.DB
	client SumUpClient
	debug  *DebugSink

	mu        sync.Mutex
	confirmed map[string]bool
}

func NewRefundGate(db *gorm.DB, client SumUpClient, debug *DebugSink) *RefundGate {
	return &RefundGate{
		db:        db,
		client:    client,
		debug:     debug,
		confirmed: make(map[string]bool),
	}
}

func confirmationKey(invoiceID, returnAgainstID uint) string {
	return fmt.Sprintf("%d::%d", invoiceID, returnAgainstID)
}

func (g *RefundGate) isConfirmed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmed[key]
}

func (g *RefundGate) remember(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmed[key] = true
}

func (g *RefundGate) logDebug(ctx context.Context, invoiceID uint, step string, details map[string]interface{}) {
	if g.debug != nil {
		g.debug.PublishRefundDebug(ctx, invoiceID, step, details)
	}
}

// Confirm runs the gate for a return submission. A previously affirmed
// (invoice, return-against) pair passes without asking again; a declined or
// unanswerable prompt blocks the submission without being remembered.
func (g *RefundGate) Confirm(ctx context.Context, invoice *models.Invoice, confirmer Confirmer) (bool, *RefundPrompt, error) {
	// A cached affirmation passes before the preview is computed again.
	if invoice.IsReturn && invoice.ReturnAgainstID != nil {
		if g.isConfirmed(confirmationKey(invoice.ID, *invoice.ReturnAgainstID)) {
			g.logDebug(ctx, invoice.ID, "confirmation_cached", nil)
			return true, nil, nil
		}
	}

	preview, err := g.Preview(ctx, invoice)
	if err != nil {
		return false, nil, err
	}
	if !preview.NeedsConfirmation {
		return true, nil, nil
	}

	key := confirmationKey(invoice.ID, *invoice.ReturnAgainstID)
	if confirmer == nil {
		return false, preview.Prompt, nil
	}
	ok, err := confirmer.ConfirmRefund(ctx, *preview.Prompt)
	if err != nil {
		return false, preview.Prompt, err
	}
	if !ok {
		g.logDebug(ctx, invoice.ID, "confirmation_declined", nil)
		return false, preview.Prompt, nil
	}
	g.remember(key)
	g.logDebug(ctx, invoice.ID, "confirmation_affirmed", nil)
	return true, nil, nil
}

// Preview decides whether submitting the invoice would trigger a sumup
// refund. It never mutates anything and never calls the gateway.
func (g *RefundGate) Preview(ctx context.Context, invoice *models.Invoice) (*RefundPreview, error) {
	settings, err := GetSettings(g.db)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"is_return":      invoice.IsReturn,
		"sumup_enabled":  settings.Enabled,
		"return_against": invoice.ReturnAgainstID,
	}

	skip := func(reason string) (*RefundPreview, error) {
		details["reason"] = reason
		g.logDebug(ctx, invoice.ID, "preview_skipped", details)
		preview := &RefundPreview{NeedsConfirmation: false}
		if settings.EnableDebugLogging {
			preview.DebugDetails = details
		}
		return preview, nil
	}

	if !invoice.IsReturn {
		return skip("not_a_return")
	}
	if !settings.Enabled {
		return skip("sumup_disabled")
	}
	if invoice.ReturnAgainstID == nil {
		return skip("no_return_against")
	}

	var original models.Invoice
	if err := g.db.First(&original, *invoice.ReturnAgainstID).Error; err != nil {
		return nil, fmt.Errorf("failed to load original invoice %d: %w", *invoice.ReturnAgainstID, err)
	}
	details["original_transaction_id"] = original.TransactionID
	if original.TransactionID == "" {
		return skip("no_original_transaction")
	}

	amount := invoice.RefundableTotal()
	details["refund_amount"] = amount
	if amount <= 0 {
		return skip("nothing_to_refund")
	}

	prompt := &RefundPrompt{
		InvoiceID:     invoice.ID,
		ReturnAgainst: original.ID,
		Amount:        amount,
		Currency:      original.CardCurrency,
	}
	g.logDebug(ctx, invoice.ID, "preview_needs_confirmation", details)
	preview := &RefundPreview{NeedsConfirmation: true, Prompt: prompt}
	if settings.EnableDebugLogging {
		preview.DebugDetails = details
	}
	return preview, nil
}

type refundContext struct {
	invoice  *models.Invoice
	original *models.Invoice
	amount   float64
}

// buildRefundContext re-validates the refund against the original invoice.
// Runs strictly: a mismatch here aborts the submission instead of silently
// skipping the refund.
func (g *RefundGate) buildRefundContext(invoice *models.Invoice) (*refundContext, error) {
	if invoice.ReturnAgainstID == nil {
		return nil, errors.New("return invoice is missing its original invoice")
	}
	var original models.Invoice
	if err := g.db.First(&original, *invoice.ReturnAgainstID).Error; err != nil {
		return nil, fmt.Errorf("failed to load original invoice %d: %w", *invoice.ReturnAgainstID, err)
	}
	if original.CardStatus != models.PaymentStatusSuccessful || original.TransactionID == "" {
		return nil, ErrRefundOriginalNotPaid
	}

	amount := invoice.RefundableTotal()
	if amount <= 0 {
		return nil, errors.New("refund amount must be positive")
	}
	if invoice.Currency != "" && original.CardCurrency != "" &&
		!strings.EqualFold(invoice.Currency, original.CardCurrency) {
		return nil, ErrRefundCurrency
	}
	remaining := original.CardAmount - original.RefundAmount
	if amount > remaining+amountTolerance {
		return nil, ErrRefundExceedsPayment
	}

	return &refundContext{invoice: invoice, original: &original, amount: amount}, nil
}

// ProcessBeforeSubmit carries out the refund for a confirmed return. On any
// failure the refund is marked FAILED and the submission is aborted; the
// operator retries from the invoice page.
func (g *RefundGate) ProcessBeforeSubmit(ctx context.Context, invoice *models.Invoice) error {
	preview, err := g.Preview(ctx, invoice)
	if err != nil {
		return err
	}
	if !preview.NeedsConfirmation {
		return nil
	}
	return g.attempt(ctx, invoice, true)
}

// attempt performs one refund call against the gateway and persists the
// outcome. When raiseOnError is false a failure is recorded but not
// returned, which is the retry path.
func (g *RefundGate) attempt(ctx context.Context, invoice *models.Invoice, raiseOnError bool) error {
	rc, err := g.buildRefundContext(invoice)
	if err != nil {
		g.markRefund(invoice.ID, models.PaymentStatusFailed, 0)
		if raiseOnError {
			return err
		}
		g.logDebug(ctx, invoice.ID, "refund_validation_failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	g.logDebug(ctx, invoice.ID, "refund_requested", map[string]interface{}{
		"transaction_id": rc.original.TransactionID,
		"amount":         rc.amount,
	})

	refundErr := g.client.RefundTransaction(ctx, rc.original.TransactionID, rc.amount)
	if refundErr != nil {
		var apiErr *APIError
		if errors.As(refundErr, &apiErr) && apiErr.Status == 409 {
			// Conflict usually means the transaction was already refunded,
			// e.g. a previous attempt that timed out on our side. Refresh
			// the original and check whether the refund is covered.
			if g.reconcileConflict(ctx, rc) {
				g.markRefund(invoice.ID, models.PaymentStatusSuccessful, rc.amount)
				g.logDebug(ctx, invoice.ID, "conflict_already_refunded", map[string]interface{}{
					"transaction_id": rc.original.TransactionID,
				})
				return nil
			}
		}
		g.markRefund(invoice.ID, models.PaymentStatusFailed, 0)
		g.logDebug(ctx, invoice.ID, "refund_failed", map[string]interface{}{"error": refundErr.Error()})
		if raiseOnError {
			return fmt.Errorf("sumup refund failed: %w", refundErr)
		}
		return nil
	}

	g.markRefund(invoice.ID, models.PaymentStatusSuccessful, rc.amount)
	g.db.Model(&models.Invoice{}).Where("id = ?", rc.original.ID).
		Update("refund_amount", rc.original.RefundAmount+rc.amount)
	g.logDebug(ctx, invoice.ID, "refund_succeeded", map[string]interface{}{
		"transaction_id": rc.original.TransactionID,
		"amount":         rc.amount,
	})
	return nil
}

// reconcileConflict refreshes the original transaction from the gateway and
// reports whether its refunded total already covers this refund.
func (g *RefundGate) reconcileConflict(ctx context.Context, rc *refundContext) bool {
	merchantCode, _, err := requireMerchantContext(g.db)
	if err != nil || rc.original.ClientTransactionID == "" {
		return false
	}
	tx, err := g.client.GetTransaction(ctx, merchantCode, rc.original.ClientTransactionID)
	if err != nil {
		return false
	}
	status := strings.ToUpper(strings.TrimSpace(tx.Status))
	if err := applyTransaction(g.db, rc.original, tx, status); err != nil {
		return false
	}
	return tx.RefundedAmount+amountTolerance >= rc.original.RefundAmount+rc.amount ||
		math.Abs(tx.RefundedAmount-rc.amount) <= amountTolerance
}

func (g *RefundGate) markRefund(invoiceID uint, status models.PaymentStatus, amount float64) {
	updates := map[string]interface{}{"refund_status": status}
	if amount > 0 {
		updates["refund_amount"] = amount
	}
	if err := g.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).Updates(updates).Error; err != nil {
		log.Printf("failed to record refund status for invoice %d: %v", invoiceID, err)
	}
}

// Retry re-attempts the refund for a submitted return whose refund failed.
func (g *RefundGate) Retry(ctx context.Context, invoiceID uint) (*RefundRetryResult, error) {
	var invoice models.Invoice
	if err := g.db.Preload("Payments").First(&invoice, invoiceID).Error; err != nil {
		return nil, err
	}
	if !invoice.IsReturn || invoice.DocStatus != models.DocStatusSubmitted ||
		invoice.RefundStatus != models.PaymentStatusFailed {
		return nil, ErrRefundNotRetryable
	}

	if err := g.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).
		Update("refund_status", models.PaymentStatusPending).Error; err != nil {
		return nil, err
	}
	invoice.RefundStatus = models.PaymentStatusPending

	if err := g.attempt(ctx, &invoice, false); err != nil {
		return nil, err
	}

	var refreshed models.Invoice
	if err := g.db.First(&refreshed, invoiceID).Error; err != nil {
		return nil, err
	}
	result := &RefundRetryResult{Status: refreshed.RefundStatus}
	if refreshed.RefundStatus == models.PaymentStatusSuccessful {
		result.Message = "Refund completed."
	} else {
		result.Message = "Refund failed again; check the SumUp account."
	}
	return result, nil
}
