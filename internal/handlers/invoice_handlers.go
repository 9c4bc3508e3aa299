package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
	"sumup_pos_app/internal/services"
)

type InvoiceHandler struct {
	db           *gorm.DB
	orchestrator *services.PaymentOrchestrator
	refunds      *services.RefundGate
}

func NewInvoiceHandler(db *gorm.DB, orchestrator *services.PaymentOrchestrator, refunds *services.RefundGate) *InvoiceHandler {
	return &InvoiceHandler{db: db, orchestrator: orchestrator, refunds: refunds}
}

func invoiceIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid invoice id")
	}
	return uint(id), nil
}

// submitConfirmer answers the refund prompt from a flag the client sent
// along with the request. When the flag is absent the prompt is recorded so
// the handler can ask the operator and have them re-submit.
type submitConfirmer struct {
	confirmed bool
}

func (s submitConfirmer) ConfirmRefund(ctx context.Context, prompt services.RefundPrompt) (bool, error) {
	return s.confirmed, nil
}

type submitRequest struct {
	RefundConfirmed *bool `json:"refund_confirmed"`
}

// Submit runs the submission interception for an invoice. A return that
// still needs refund confirmation answers 409 with the prompt; the client
// re-submits with refund_confirmed set.
func (h *InvoiceHandler) Submit(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var confirmer services.Confirmer
	if req.RefundConfirmed != nil {
		confirmer = submitConfirmer{confirmed: *req.RefundConfirmed}
	}

	result, err := h.orchestrator.Submit(c.Request().Context(), id, confirmer)
	if err != nil {
		return err
	}
	if result.State == services.SubmitStateRefundDeclined && result.RefundPrompt != nil && confirmer == nil {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusOK, result)
}

// StartPayment opens a payment session for the invoice.
func (h *InvoiceHandler) StartPayment(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	result, err := h.orchestrator.StartSession(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// PaymentStatus performs a one-shot status check against the gateway.
func (h *InvoiceHandler) PaymentStatus(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	result, err := h.orchestrator.CheckStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CancelPayment stops the session and resets the invoice's card payment.
func (h *InvoiceHandler) CancelPayment(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	result, err := h.orchestrator.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// RefundPreview tells the client whether submitting would ask for refund
// confirmation.
func (h *InvoiceHandler) RefundPreview(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	var invoice models.Invoice
	if err := h.db.Preload("Payments").First(&invoice, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	}
	preview, err := h.refunds.Preview(c.Request().Context(), &invoice)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

// RetryRefund re-attempts a failed refund on a submitted return.
func (h *InvoiceHandler) RetryRefund(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	result, err := h.refunds.Retry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Get returns the invoice with its payment rows.
func (h *InvoiceHandler) Get(c echo.Context) error {
	id, err := invoiceIDParam(c)
	if err != nil {
		return err
	}
	var invoice models.Invoice
	if err := h.db.Preload("Payments").Preload("POSProfile").First(&invoice, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	}
	return c.JSON(http.StatusOK, invoice)
}
