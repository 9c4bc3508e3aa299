package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"sumup_pos_app/internal/services"
)

// ErrorResponse is the JSON body every failed request gets.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusForError maps known service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrTerminalNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTerminalLinked),
		errors.Is(err, services.ErrPaymentAlreadyCompleted),
		errors.Is(err, services.ErrInvoiceNotDraft):
		return http.StatusConflict
	case errors.Is(err, services.ErrDebugModeRequired),
		errors.Is(err, services.ErrRecoveryModeOff):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSumUpDisabled),
		errors.Is(err, services.ErrMerchantCodeMissing),
		errors.Is(err, services.ErrMerchantCurrencyMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, services.ErrInvalidPairingCode),
		errors.Is(err, services.ErrNoCardPayment),
		errors.Is(err, services.ErrMultipleCardRows),
		errors.Is(err, services.ErrSplitCardPayment),
		errors.Is(err, services.ErrCurrencyMismatch),
		errors.Is(err, services.ErrRefundOriginalNotPaid),
		errors.Is(err, services.ErrRefundCurrency),
		errors.Is(err, services.ErrRefundExceedsPayment),
		errors.Is(err, services.ErrRefundNotRetryable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CustomErrorHandler creates a custom error handler for Echo
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
	} else {
		code = statusForError(err)
		if code != http.StatusInternalServerError {
			message = err.Error()
		}
	}

	c.Logger().Error(err)

	if writeErr := c.JSON(code, ErrorResponse{Error: message}); writeErr != nil {
		c.Logger().Error(writeErr)
	}
}
