package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sumup_pos_app/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func seedSettings(t *testing.T, db *gorm.DB, mutate func(*models.Settings)) *models.Settings {
	t.Helper()
	settings := models.Settings{
		Enabled:          true,
		MerchantCode:     "M123",
		MerchantCurrency: "EUR",
	}
	if mutate != nil {
		mutate(&settings)
	}
	require.NoError(t, db.Create(&settings).Error)
	return &settings
}

func seedProfileWithTerminal(t *testing.T, db *gorm.DB) *models.POSProfile {
	t.Helper()
	terminal := models.Terminal{
		TerminalID:       "rdr_1",
		TerminalName:     "Front Desk",
		Enabled:          true,
		ConnectionStatus: models.ConnectionStatusPaired,
		OnlineStatus:     models.OnlineStatusUnknown,
		ActivityStatus:   models.ActivityStatusUnknown,
	}
	require.NoError(t, db.Create(&terminal).Error)

	profile := models.POSProfile{
		Name:       "Main Counter",
		TerminalID: &terminal.ID,
	}
	require.NoError(t, db.Create(&profile).Error)
	require.NoError(t, db.Create(&models.ProfilePayment{
		POSProfileID:  profile.ID,
		ModeOfPayment: "SumUp Card",
		UseTerminal:   true,
	}).Error)
	require.NoError(t, db.Create(&models.ProfilePayment{
		POSProfileID:  profile.ID,
		ModeOfPayment: "Cash",
	}).Error)
	return &profile
}

func seedCardInvoice(t *testing.T, db *gorm.DB, profileID uint, total float64) *models.Invoice {
	t.Helper()
	invoice := models.Invoice{
		POSProfileID: profileID,
		Currency:     "EUR",
		GrandTotal:   total,
		DocStatus:    models.DocStatusDraft,
	}
	require.NoError(t, db.Create(&invoice).Error)
	require.NoError(t, db.Create(&models.InvoicePayment{
		InvoiceID:     invoice.ID,
		ModeOfPayment: "SumUp Card",
		Amount:        total,
	}).Error)
	return &invoice
}

type mockSumUpClient struct {
	CreateReaderCheckoutFunc    func(ctx context.Context, merchantCode, readerID string, amount CheckoutAmount) (*ReaderCheckout, error)
	TerminateReaderCheckoutFunc func(ctx context.Context, merchantCode, readerID string) error
	GetTransactionFunc          func(ctx context.Context, merchantCode, clientTransactionID string) (*Transaction, error)
	RefundTransactionFunc       func(ctx context.Context, transactionID string, amount float64) error
	CreateReaderFunc            func(ctx context.Context, merchantCode, pairingCode, name string) (*Reader, error)
	ListReadersFunc             func(ctx context.Context, merchantCode string) ([]Reader, error)
	GetReaderStatusFunc         func(ctx context.Context, merchantCode, readerID string) (*ReaderDeviceStatus, error)
	DeleteReaderFunc            func(ctx context.Context, merchantCode, readerID string) error
	GetMerchantProfileFunc      func(ctx context.Context, merchantCode string) (*MerchantProfile, error)
}

func (m *mockSumUpClient) CreateReaderCheckout(ctx context.Context, merchantCode, readerID string, amount CheckoutAmount) (*ReaderCheckout, error) {
	return m.CreateReaderCheckoutFunc(ctx, merchantCode, readerID, amount)
}

func (m *mockSumUpClient) TerminateReaderCheckout(ctx context.Context, merchantCode, readerID string) error {
	return m.TerminateReaderCheckoutFunc(ctx, merchantCode, readerID)
}

func (m *mockSumUpClient) GetTransaction(ctx context.Context, merchantCode, clientTransactionID string) (*Transaction, error) {
	return m.GetTransactionFunc(ctx, merchantCode, clientTransactionID)
}

func (m *mockSumUpClient) RefundTransaction(ctx context.Context, transactionID string, amount float64) error {
	return m.RefundTransactionFunc(ctx, transactionID, amount)
}

func (m *mockSumUpClient) CreateReader(ctx context.Context, merchantCode, pairingCode, name string) (*Reader, error) {
	return m.CreateReaderFunc(ctx, merchantCode, pairingCode, name)
}

func (m *mockSumUpClient) ListReaders(ctx context.Context, merchantCode string) ([]Reader, error) {
	return m.ListReadersFunc(ctx, merchantCode)
}

func (m *mockSumUpClient) GetReaderStatus(ctx context.Context, merchantCode, readerID string) (*ReaderDeviceStatus, error) {
	return m.GetReaderStatusFunc(ctx, merchantCode, readerID)
}

func (m *mockSumUpClient) DeleteReader(ctx context.Context, merchantCode, readerID string) error {
	return m.DeleteReaderFunc(ctx, merchantCode, readerID)
}

func (m *mockSumUpClient) GetMerchantProfile(ctx context.Context, merchantCode string) (*MerchantProfile, error) {
	return m.GetMerchantProfileFunc(ctx, merchantCode)
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	entries []string
}

func (n *recordingNotifier) Notify(indicator, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, indicator+": "+message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.entries))
	copy(out, n.entries)
	return out
}

// answerConfirmer answers every refund prompt with a fixed response and
// counts how often it was asked.
type answerConfirmer struct {
	answer bool
	asked  int
}

func (c *answerConfirmer) ConfirmRefund(ctx context.Context, prompt RefundPrompt) (bool, error) {
	c.asked++
	return c.answer, nil
}
