package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
)

// amountTolerance absorbs floating rounding when comparing payment amounts
// against invoice totals.
const amountTolerance = 1e-4

var (
	ErrInvoiceNotDraft          = errors.New("invoice must be in draft state")
	ErrNoCardPayment            = errors.New("no sumup payment selected")
	ErrMultipleCardRows         = errors.New("only one sumup payment method can be used")
	ErrSplitCardPayment         = errors.New("sumup payment must cover the full invoice amount")
	ErrPaymentAlreadyCompleted  = errors.New("sumup payment already completed")
	ErrMerchantCurrencyMissing  = errors.New("sumup merchant currency is missing; run the connection test in settings")
	ErrCurrencyMismatch         = errors.New("invoice currency does not match the sumup merchant currency")
	ErrMissingClientTransaction = errors.New("client transaction id not found in sumup response")
	ErrTerminalNotConfigured    = errors.New("no sumup terminal is configured for this pos profile")
)

// Notifier is the host's user-facing message surface. Every terminal session
// outcome produces exactly one notification through it.
type Notifier interface {
	Notify(indicator, title, message string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(indicator, title, message string) {
	log.Printf("[%s] %s: %s", indicator, title, message)
}

type paymentBreakdown struct {
	cardRows    []models.InvoicePayment
	cardAmount  float64
	otherAmount float64
}

// breakdownPayments partitions positive payment rows into terminal-routed
// and other, mirroring how the amounts will hit the gateway.
func breakdownPayments(payments []models.InvoicePayment, modes map[string]bool) paymentBreakdown {
	var b paymentBreakdown
	for _, row := range payments {
		if row.Amount <= 0 {
			continue
		}
		if modes[row.ModeOfPayment] {
			b.cardRows = append(b.cardRows, row)
			b.cardAmount += row.Amount
		} else {
			b.otherAmount += row.Amount
		}
	}
	return b
}

// validateCardComposition enforces the full-amount rule: exactly one
// terminal-routed row carrying the whole invoice total. Split payment
// through the terminal is unsupported.
func validateCardComposition(b paymentBreakdown, total float64) error {
	if len(b.cardRows) > 1 {
		return ErrMultipleCardRows
	}
	if b.otherAmount > 0 || math.Abs(b.cardAmount-total) > amountTolerance {
		return ErrSplitCardPayment
	}
	return nil
}

var minorUnitByCurrency = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

func minorUnit(currency string) int {
	if unit, ok := minorUnitByCurrency[strings.ToUpper(currency)]; ok {
		return unit
	}
	return 2
}

func toMinorValue(amount float64, unit int) int64 {
	return int64(math.Round(amount * math.Pow10(unit)))
}

// StatusResult is a point-in-time view of the gateway transaction backing a
// payment session. Status is the raw upper-cased gateway status; anything
// outside the final set keeps the session pending.
type StatusResult struct {
	Status         string  `json:"status"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	TransactionID  string  `json:"transaction_id"`
	RefundedAmount float64 `json:"refunded_amount"`
}

// StartResult is the outcome of opening a payment session.
type StartResult struct {
	Status              models.PaymentStatus `json:"status"`
	ClientTransactionID string               `json:"client_transaction_id"`
	Message             string               `json:"message"`
	AlreadyPending      bool                 `json:"already_pending"`
}

// CancelResult is the outcome of cancelling a payment session.
type CancelResult struct {
	Status  models.PaymentStatus `json:"status"`
	Message string               `json:"message"`
	Error   string               `json:"error,omitempty"`
}

// SubmitState tells the host what happened to a submission attempt.
type SubmitState string

const (
	SubmitStateSubmitted         SubmitState = "submitted"
	SubmitStateRefundDeclined    SubmitState = "refund_declined"
	SubmitStatePaymentPending    SubmitState = "payment_pending"
	SubmitStateAlreadyInProgress SubmitState = "already_in_progress"
)

// SubmitResult is the outcome of an intercepted submission.
type SubmitResult struct {
	State               SubmitState   `json:"state"`
	ClientTransactionID string        `json:"client_transaction_id,omitempty"`
	RefundPrompt        *RefundPrompt `json:"refund_prompt,omitempty"`
}

// session is the in-flight state of one card payment. The ticking flag is
// the re-entrancy lock: at most one status query is in flight per session.
type session struct {
	invoiceID           uint
	merchantCode        string
	readerID            string
	clientTransactionID string
	cancel              context.CancelFunc

	mu      sync.Mutex
	ticking bool
}

// PaymentOrchestrator drives card payment sessions for invoices: start,
// poll until a final status, cancel, and resume the host submission. The
// in-progress guard is scoped per invoice, never process-wide.
type PaymentOrchestrator struct {
	db       *gorm.DB
	client   SumUpClient
	refunds  *RefundGate
	notifier Notifier

	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[uint]*session
}

func NewPaymentOrchestrator(db *gorm.DB, client SumUpClient, refunds *RefundGate, notifier Notifier) *PaymentOrchestrator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &PaymentOrchestrator{
		db:           db,
		client:       client,
		refunds:      refunds,
		notifier:     notifier,
		pollInterval: 3 * time.Second,
		sessions:     make(map[uint]*session),
	}
}

// InProgress reports whether a payment session is open for the invoice.
func (o *PaymentOrchestrator) InProgress(invoiceID uint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.sessions[invoiceID]
	return ok
}

func (o *PaymentOrchestrator) loadInvoice(invoiceID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := o.db.Preload("Payments").Preload("POSProfile.Payments").First(&invoice, invoiceID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}
	return &invoice, nil
}

func (o *PaymentOrchestrator) terminalForProfile(profile *models.POSProfile) (*models.Terminal, error) {
	if profile.TerminalID == nil {
		return nil, ErrTerminalNotConfigured
	}
	var terminal models.Terminal
	if err := o.db.First(&terminal, *profile.TerminalID).Error; err != nil {
		return nil, ErrTerminalNotConfigured
	}
	if !terminal.Enabled {
		return nil, fmt.Errorf("sumup terminal %s is disabled", terminal.TerminalName)
	}
	if terminal.TerminalID == "" {
		return nil, fmt.Errorf("terminal id is missing for sumup terminal %s", terminal.TerminalName)
	}
	return &terminal, nil
}

// Submit intercepts the host's invoice submission. Returns go through the
// refund gate first; card sales open a payment session and the submission
// resumes once the terminal confirms. A submission while a session is open
// is a silent no-op.
func (o *PaymentOrchestrator) Submit(ctx context.Context, invoiceID uint, confirmer Confirmer) (*SubmitResult, error) {
	if o.InProgress(invoiceID) {
		return &SubmitResult{State: SubmitStateAlreadyInProgress}, nil
	}

	invoice, err := o.loadInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocStatus != models.DocStatusDraft {
		return nil, ErrInvoiceNotDraft
	}

	if invoice.IsReturn {
		return o.submitReturn(ctx, invoice, confirmer)
	}

	modes := invoice.POSProfile.TerminalModes()
	breakdown := breakdownPayments(invoice.Payments, modes)
	if len(modes) == 0 || breakdown.cardAmount == 0 {
		if err := o.markSubmitted(invoice.ID); err != nil {
			return nil, err
		}
		return &SubmitResult{State: SubmitStateSubmitted}, nil
	}

	if err := validateCardComposition(breakdown, invoice.GrandTotal); err != nil {
		o.notifier.Notify("danger", "SumUp Payment", err.Error())
		return nil, err
	}

	start, err := o.StartSession(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{
		State:               SubmitStatePaymentPending,
		ClientTransactionID: start.ClientTransactionID,
	}, nil
}

func (o *PaymentOrchestrator) submitReturn(ctx context.Context, invoice *models.Invoice, confirmer Confirmer) (*SubmitResult, error) {
	confirmed, prompt, err := o.refunds.Confirm(ctx, invoice, confirmer)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &SubmitResult{State: SubmitStateRefundDeclined, RefundPrompt: prompt}, nil
	}
	if err := o.refunds.ProcessBeforeSubmit(ctx, invoice); err != nil {
		return nil, err
	}
	if err := o.markSubmitted(invoice.ID); err != nil {
		return nil, err
	}
	return &SubmitResult{State: SubmitStateSubmitted}, nil
}

func (o *PaymentOrchestrator) markSubmitted(invoiceID uint) error {
	return o.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).
		Update("doc_status", models.DocStatusSubmitted).Error
}

// StartSession opens a payment session: creates a reader checkout, persists
// the pending state and begins polling. When the invoice already carries a
// pending checkout, polling is resumed instead of charging again.
//
// The per-invoice session slot is claimed before any gateway call. Two
// submissions racing through the checkout round trip would otherwise each
// open a reader checkout and charge the card twice.
func (o *PaymentOrchestrator) StartSession(ctx context.Context, invoiceID uint) (*StartResult, error) {
	st, liveTransactionID := o.reserve(invoiceID)
	if st == nil {
		return &StartResult{
			Status:              models.PaymentStatusPending,
			ClientTransactionID: liveTransactionID,
			Message:             "SumUp payment already in progress.",
			AlreadyPending:      true,
		}, nil
	}
	started := false
	defer func() {
		if !started {
			o.release(st)
		}
	}()

	invoice, err := o.loadInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocStatus != models.DocStatusDraft {
		return nil, ErrInvoiceNotDraft
	}

	modes := invoice.POSProfile.TerminalModes()
	if len(modes) == 0 {
		return nil, ErrTerminalNotConfigured
	}
	breakdown := breakdownPayments(invoice.Payments, modes)
	if breakdown.cardAmount == 0 {
		return nil, ErrNoCardPayment
	}
	if err := validateCardComposition(breakdown, invoice.GrandTotal); err != nil {
		return nil, err
	}

	if invoice.CardStatus == models.PaymentStatusSuccessful {
		return nil, ErrPaymentAlreadyCompleted
	}

	merchantCode, settings, err := requireMerchantContext(o.db)
	if err != nil {
		return nil, err
	}
	if settings.MerchantCurrency == "" {
		return nil, ErrMerchantCurrencyMissing
	}
	if !strings.EqualFold(invoice.Currency, settings.MerchantCurrency) {
		return nil, ErrCurrencyMismatch
	}

	terminal, err := o.terminalForProfile(&invoice.POSProfile)
	if err != nil {
		return nil, err
	}

	if invoice.CardStatus == models.PaymentStatusPending && invoice.ClientTransactionID != "" {
		// Checkout already open at the gateway; just make sure polling runs.
		started = o.activate(st, merchantCode, terminal.TerminalID, invoice.ClientTransactionID)
		return &StartResult{
			Status:              models.PaymentStatusPending,
			ClientTransactionID: invoice.ClientTransactionID,
			Message:             "SumUp payment already in progress.",
		}, nil
	}

	unit := minorUnit(invoice.Currency)
	amount := CheckoutAmount{
		Currency:  strings.ToUpper(invoice.Currency),
		MinorUnit: unit,
		Value:     toMinorValue(invoice.GrandTotal, unit),
	}

	checkout, err := o.client.CreateReaderCheckout(ctx, merchantCode, terminal.TerminalID, amount)
	if err != nil {
		o.notifier.Notify("danger", "SumUp Payment", "Unable to start SumUp payment.")
		return nil, fmt.Errorf("sumup checkout failed: %w", err)
	}
	if checkout.ClientTransactionID == "" {
		return nil, ErrMissingClientTransaction
	}

	updates := map[string]interface{}{
		"card_status":           models.PaymentStatusPending,
		"client_transaction_id": checkout.ClientTransactionID,
		"card_amount":           invoice.GrandTotal,
		"card_currency":         invoice.Currency,
	}
	if err := o.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	started = o.activate(st, merchantCode, terminal.TerminalID, checkout.ClientTransactionID)

	return &StartResult{
		Status:              models.PaymentStatusPending,
		ClientTransactionID: checkout.ClientTransactionID,
		Message:             "SumUp payment started.",
	}, nil
}

// reserve claims the session slot for the invoice with a placeholder, so
// InProgress reports true for the whole start attempt. Returns nil plus the
// open session's client transaction id when a session is already live.
func (o *PaymentOrchestrator) reserve(invoiceID uint) (*session, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.sessions[invoiceID]; ok {
		return nil, current.clientTransactionID
	}
	st := &session{invoiceID: invoiceID, cancel: func() {}}
	o.sessions[invoiceID] = st
	return st, ""
}

// release frees a reserved slot that never became a live session.
func (o *PaymentOrchestrator) release(st *session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.sessions[st.invoiceID]; ok && current == st {
		delete(o.sessions, st.invoiceID)
	}
}

// activate fills a reserved session and starts its polling loop. Reports
// false when the reservation was removed in the meantime (a concurrent
// Cancel); no polling starts then.
func (o *PaymentOrchestrator) activate(st *session, merchantCode, readerID, clientTransactionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.sessions[st.invoiceID]; !ok || current != st {
		return false
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	st.merchantCode = merchantCode
	st.readerID = readerID
	st.clientTransactionID = clientTransactionID
	st.cancel = cancel
	go o.pollLoop(pollCtx, st)
	return true
}

func (o *PaymentOrchestrator) pollLoop(ctx context.Context, st *session) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	if o.tick(ctx, st) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.tick(ctx, st) {
				return
			}
		}
	}
}

// tick performs one status poll. Returns true when the session is done and
// the loop must stop. The ticking flag is cleared on every exit path.
func (o *PaymentOrchestrator) tick(ctx context.Context, st *session) bool {
	st.mu.Lock()
	if st.ticking {
		st.mu.Unlock()
		return false
	}
	st.ticking = true
	st.mu.Unlock()
	defer func() {
		st.mu.Lock()
		st.ticking = false
		st.mu.Unlock()
	}()

	result, err := o.CheckStatus(ctx, st.invoiceID)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-flight; Cancel owns the cleanup.
			return true
		}
		// A transport error on the status check is unrecoverable for the
		// session: stop polling and clear the in-progress flag.
		if o.endSession(st) {
			o.notifier.Notify("danger", "SumUp Payment", "Unable to fetch SumUp payment status.")
		}
		return true
	}

	switch models.PaymentStatus(result.Status) {
	case models.PaymentStatusSuccessful:
		if !o.endSession(st) {
			return true
		}
		o.notifier.Notify("success", "SumUp Payment", "Payment confirmed.")
		o.resumeSubmission(st.invoiceID)
		return true
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		if !o.endSession(st) {
			return true
		}
		o.notifier.Notify("danger", "SumUp Payment", "SumUp payment failed.")
		return true
	default:
		o.notifier.Notify("muted", "SumUp Payment", "Waiting for card confirmation...")
		return false
	}
}

// endSession removes the session from the registry. Only the caller that
// actually removed it may act on the terminal transition; this keeps a late
// tick from racing a cancellation.
func (o *PaymentOrchestrator) endSession(st *session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	current, ok := o.sessions[st.invoiceID]
	if !ok || current != st {
		return false
	}
	delete(o.sessions, st.invoiceID)
	st.cancel()
	return true
}

// resumeSubmission completes the host submission after a captured payment,
// bypassing any reconfirmation. The capture is never undone: when the
// submission itself fails the invoice is parked as Paid Not Finalized.
func (o *PaymentOrchestrator) resumeSubmission(invoiceID uint) {
	if err := o.markSubmitted(invoiceID); err != nil {
		log.Printf("sumup payment captured but submission failed (invoice=%d): %v", invoiceID, err)
		o.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).
			Update("doc_status", models.DocStatusPaidNotFinalized)
		o.notifier.Notify("danger", "SumUp Payment",
			"Payment captured but the invoice could not be submitted.")
	}
}

// CheckStatus queries the gateway for the invoice's transaction and
// persists whatever arrived: a transaction id is stored as soon as it is
// known, amounts and refunded totals on every answer, the status itself
// only once final. A 404 from the gateway means the terminal has not
// reported the transaction yet and maps to PENDING.
func (o *PaymentOrchestrator) CheckStatus(ctx context.Context, invoiceID uint) (*StatusResult, error) {
	var invoice models.Invoice
	if err := o.db.First(&invoice, invoiceID).Error; err != nil {
		return nil, err
	}
	if invoice.ClientTransactionID == "" {
		return nil, errors.New("sumup payment is missing a transaction id")
	}

	merchantCode, _, err := requireMerchantContext(o.db)
	if err != nil {
		return nil, err
	}

	tx, err := o.client.GetTransaction(ctx, merchantCode, invoice.ClientTransactionID)
	if errors.Is(err, ErrNotFound) {
		return &StatusResult{Status: string(models.PaymentStatusPending)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sumup status check failed: %w", err)
	}

	status := strings.ToUpper(strings.TrimSpace(tx.Status))
	if status == "" {
		status = "UNKNOWN"
	}

	if err := applyTransaction(o.db, &invoice, tx, status); err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:         status,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		TransactionID:  tx.ID,
		RefundedAmount: tx.RefundedAmount,
	}, nil
}

// applyTransaction persists gateway transaction fields onto the invoice.
// The update only matches while the invoice still carries the client
// transaction id the answer was fetched for; a cancellation clears that id,
// so a status answer that raced it lands on zero rows instead of reviving
// the payment.
func applyTransaction(db *gorm.DB, invoice *models.Invoice, tx *Transaction, status string) error {
	updates := map[string]interface{}{}
	if tx.Amount != 0 {
		updates["card_amount"] = tx.Amount
	}
	if tx.Currency != "" {
		updates["card_currency"] = tx.Currency
	}
	if tx.ID != "" && tx.ID != invoice.TransactionID {
		updates["transaction_id"] = tx.ID
	}
	if tx.RefundedAmount != 0 {
		updates["refund_amount"] = tx.RefundedAmount
	}
	if models.PaymentStatus(status).Final() {
		updates["card_status"] = status
	}
	if len(updates) == 0 {
		return nil
	}
	return db.Model(&models.Invoice{}).
		Where("id = ? AND client_transaction_id = ?", invoice.ID, invoice.ClientTransactionID).
		Updates(updates).Error
}

// Cancel stops the polling loop, terminates the checkout at the gateway
// (best effort) and resets the local payment state. Terminal-routed payment
// rows are zeroed so the operator can pick another payment mode.
func (o *PaymentOrchestrator) Cancel(ctx context.Context, invoiceID uint) (*CancelResult, error) {
	// Stop the timer before issuing the cancel call so no tick can race it.
	o.mu.Lock()
	st := o.sessions[invoiceID]
	if st != nil {
		delete(o.sessions, invoiceID)
	}
	o.mu.Unlock()
	if st != nil {
		st.cancel()
	}

	invoice, err := o.loadInvoice(invoiceID)
	if err != nil {
		return nil, err
	}

	var gatewayErr error
	merchantCode, settings, err := requireMerchantContext(o.db)
	if err != nil {
		gatewayErr = err
	} else if terminal, terr := o.terminalForProfile(&invoice.POSProfile); terr != nil {
		gatewayErr = terr
	} else {
		gatewayErr = o.client.TerminateReaderCheckout(ctx, merchantCode, terminal.TerminalID)
	}

	updates := map[string]interface{}{
		"card_status":           models.PaymentStatusCancelled,
		"client_transaction_id": "",
		"card_amount":           0,
		"card_currency":         "",
	}
	if err := o.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).Updates(updates).Error; err != nil {
		return nil, err
	}

	modes := invoice.POSProfile.TerminalModes()
	if len(modes) > 0 {
		modeList := make([]string, 0, len(modes))
		for mode := range modes {
			modeList = append(modeList, mode)
		}
		if err := o.db.Model(&models.InvoicePayment{}).
			Where("invoice_id = ? AND mode_of_payment IN ?", invoiceID, modeList).
			Update("amount", 0).Error; err != nil {
			return nil, err
		}
	}

	result := &CancelResult{
		Status:  models.PaymentStatusCancelled,
		Message: "SumUp payment cancelled.",
	}
	if gatewayErr != nil {
		log.Printf("sumup cancel call failed (invoice=%d): %v", invoiceID, gatewayErr)
		if settings != nil && settings.EnableDebugLogging {
			result.Error = gatewayErr.Error()
		}
	}
	return result, nil
}
