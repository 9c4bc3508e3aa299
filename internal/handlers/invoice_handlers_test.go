package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appMiddleware "sumup_pos_app/internal/middleware"
	"sumup_pos_app/internal/models"
	"sumup_pos_app/internal/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, services.AutoMigrate(db))
	require.NoError(t, db.Create(&models.Settings{
		Enabled:          true,
		MerchantCode:     "M123",
		MerchantCurrency: "EUR",
	}).Error)
	return db
}

// stubSumUp is a gateway that records refunds and answers fixed values.
type stubSumUp struct {
	refunds   int
	refundErr error
}

func (s *stubSumUp) CreateReaderCheckout(ctx context.Context, merchantCode, readerID string, amount services.CheckoutAmount) (*services.ReaderCheckout, error) {
	return &services.ReaderCheckout{ClientTransactionID: "ctid_1"}, nil
}

func (s *stubSumUp) TerminateReaderCheckout(ctx context.Context, merchantCode, readerID string) error {
	return nil
}

func (s *stubSumUp) GetTransaction(ctx context.Context, merchantCode, clientTransactionID string) (*services.Transaction, error) {
	return &services.Transaction{Status: "PENDING"}, nil
}

func (s *stubSumUp) RefundTransaction(ctx context.Context, transactionID string, amount float64) error {
	s.refunds++
	return s.refundErr
}

func (s *stubSumUp) CreateReader(ctx context.Context, merchantCode, pairingCode, name string) (*services.Reader, error) {
	return &services.Reader{ID: "rdr_1", Name: name, Status: "paired"}, nil
}

func (s *stubSumUp) ListReaders(ctx context.Context, merchantCode string) ([]services.Reader, error) {
	return nil, nil
}

func (s *stubSumUp) GetReaderStatus(ctx context.Context, merchantCode, readerID string) (*services.ReaderDeviceStatus, error) {
	return &services.ReaderDeviceStatus{}, nil
}

func (s *stubSumUp) DeleteReader(ctx context.Context, merchantCode, readerID string) error {
	return nil
}

func (s *stubSumUp) GetMerchantProfile(ctx context.Context, merchantCode string) (*services.MerchantProfile, error) {
	return &services.MerchantProfile{MerchantCode: merchantCode, Currency: "EUR"}, nil
}

func newTestServer(t *testing.T, db *gorm.DB, client services.SumUpClient) *echo.Echo {
	t.Helper()
	gate := services.NewRefundGate(db, client, nil)
	orchestrator := services.NewPaymentOrchestrator(db, client, gate, nil)
	handler := NewInvoiceHandler(db, orchestrator, gate)

	e := echo.New()
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler
	e.POST("/invoices/:id/submit", handler.Submit)
	e.GET("/invoices/:id/refund/preview", handler.RefundPreview)
	e.POST("/invoices/:id/refund/retry", handler.RetryRefund)
	return e
}

func seedReturnPair(t *testing.T, db *gorm.DB) (*models.Invoice, *models.Invoice) {
	t.Helper()
	sale := models.Invoice{
		Currency:            "EUR",
		GrandTotal:          50,
		DocStatus:           models.DocStatusSubmitted,
		CardStatus:          models.PaymentStatusSuccessful,
		ClientTransactionID: "ctid_orig",
		TransactionID:       "txn_orig",
		CardAmount:          50,
		CardCurrency:        "EUR",
	}
	require.NoError(t, db.Create(&sale).Error)

	ret := models.Invoice{
		Currency:        "EUR",
		GrandTotal:      -50,
		DocStatus:       models.DocStatusDraft,
		IsReturn:        true,
		ReturnAgainstID: &sale.ID,
	}
	require.NoError(t, db.Create(&ret).Error)
	return &sale, &ret
}

func TestSubmitCashInvoice(t *testing.T) {
	db := setupTestDB(t)
	e := newTestServer(t, db, &stubSumUp{})

	invoice := models.Invoice{Currency: "EUR", GrandTotal: 20, DocStatus: models.DocStatusDraft}
	require.NoError(t, db.Create(&invoice).Error)
	require.NoError(t, db.Create(&models.InvoicePayment{
		InvoiceID: invoice.ID, ModeOfPayment: "Cash", Amount: 20,
	}).Error)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/1/submit", bytes.NewBufferString("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(services.SubmitStateSubmitted))

	var refreshed models.Invoice
	require.NoError(t, db.First(&refreshed, invoice.ID).Error)
	assert.Equal(t, models.DocStatusSubmitted, refreshed.DocStatus)
}

func TestSubmitReturnAsksForConfirmation(t *testing.T) {
	db := setupTestDB(t)
	stub := &stubSumUp{}
	e := newTestServer(t, db, stub)
	sale, ret := seedReturnPair(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/2/submit", bytes.NewBufferString("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, stub.refunds)

	var body services.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, services.SubmitStateRefundDeclined, body.State)
	require.NotNil(t, body.RefundPrompt)
	assert.Equal(t, sale.ID, body.RefundPrompt.ReturnAgainst)
	assert.Equal(t, 50.0, body.RefundPrompt.Amount)

	var refreshed models.Invoice
	require.NoError(t, db.First(&refreshed, ret.ID).Error)
	assert.Equal(t, models.DocStatusDraft, refreshed.DocStatus)
}

func TestSubmitReturnWithConfirmation(t *testing.T) {
	db := setupTestDB(t)
	stub := &stubSumUp{}
	e := newTestServer(t, db, stub)
	_, ret := seedReturnPair(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/2/submit",
		bytes.NewBufferString(`{"refund_confirmed":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.refunds)

	var refreshed models.Invoice
	require.NoError(t, db.First(&refreshed, ret.ID).Error)
	assert.Equal(t, models.DocStatusSubmitted, refreshed.DocStatus)
	assert.Equal(t, models.PaymentStatusSuccessful, refreshed.RefundStatus)
}

func TestSubmitReturnDeclined(t *testing.T) {
	db := setupTestDB(t)
	stub := &stubSumUp{}
	e := newTestServer(t, db, stub)
	_, ret := seedReturnPair(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/2/submit",
		bytes.NewBufferString(`{"refund_confirmed":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, stub.refunds)

	var body services.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, services.SubmitStateRefundDeclined, body.State)

	var refreshed models.Invoice
	require.NoError(t, db.First(&refreshed, ret.ID).Error)
	assert.Equal(t, models.DocStatusDraft, refreshed.DocStatus)
}

func TestRefundPreviewEndpoint(t *testing.T) {
	db := setupTestDB(t)
	e := newTestServer(t, db, &stubSumUp{})
	seedReturnPair(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/invoices/2/refund/preview", nil)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var preview services.RefundPreview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.True(t, preview.NeedsConfirmation)
}

func TestRetryRefundRejectsDraft(t *testing.T) {
	db := setupTestDB(t)
	e := newTestServer(t, db, &stubSumUp{})
	seedReturnPair(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/2/refund/retry", nil)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitUnknownInvoice(t *testing.T) {
	db := setupTestDB(t)
	e := newTestServer(t, db, &stubSumUp{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/99/submit", bytes.NewBufferString("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
