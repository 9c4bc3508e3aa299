package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ErrNotFound is returned when the SumUp API answers 404 for a lookup. A
// missing transaction means the reader has not reported it yet, so callers
// treat it as still pending.
var ErrNotFound = errors.New("sumup: not found")

// APIError is a non-2xx answer from the SumUp API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("sumup api error: status %d; body %s", e.Status, e.Body)
	}
	return fmt.Sprintf("sumup api error: status %d", e.Status)
}

// CheckoutAmount is a monetary amount in the currency's minor unit, the
// format the reader checkout endpoint expects.
type CheckoutAmount struct {
	Currency  string `json:"currency"`
	MinorUnit int    `json:"minor_unit"`
	Value     int64  `json:"value"`
}

// ReaderCheckout is the result of starting a payment on a reader.
type ReaderCheckout struct {
	ClientTransactionID string `json:"client_transaction_id"`
}

// Transaction is a SumUp transaction as returned by the transactions API.
type Transaction struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	RefundedAmount float64 `json:"refunded_amount"`
}

// Reader is one card reader registered with the merchant account.
type Reader struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ReaderDeviceStatus is the live device state of a reader.
type ReaderDeviceStatus struct {
	Status      string `json:"status"`
	ScreenState string `json:"screen_state"`
}

// MerchantProfile is the merchant account profile.
type MerchantProfile struct {
	MerchantCode string `json:"merchant_code"`
	Currency     string `json:"currency"`
	Name         string `json:"name"`
}

// SumUpClient is the subset of the SumUp API this app consumes. The HTTP
// implementation is SumUpService; tests substitute a mock.
type SumUpClient interface {
	CreateReaderCheckout(ctx context.Context, merchantCode, readerID string, amount CheckoutAmount) (*ReaderCheckout, error)
	TerminateReaderCheckout(ctx context.Context, merchantCode, readerID string) error
	GetTransaction(ctx context.Context, merchantCode, clientTransactionID string) (*Transaction, error)
	RefundTransaction(ctx context.Context, transactionID string, amount float64) error
	CreateReader(ctx context.Context, merchantCode, pairingCode, name string) (*Reader, error)
	ListReaders(ctx context.Context, merchantCode string) ([]Reader, error)
	GetReaderStatus(ctx context.Context, merchantCode, readerID string) (*ReaderDeviceStatus, error)
	DeleteReader(ctx context.Context, merchantCode, readerID string) error
	GetMerchantProfile(ctx context.Context, merchantCode string) (*MerchantProfile, error)
}

// SumUpService talks to the SumUp REST API.
type SumUpService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSumUpService() *SumUpService {
	baseURL := os.Getenv("SUMUP_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.sumup.com"
	}
	return &SumUpService{
		baseURL: baseURL,
		apiKey:  os.Getenv("SUMUP_API_KEY"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SumUpService) makeRequest(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", s.baseURL, endpoint), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (s *SumUpService) CreateReaderCheckout(ctx context.Context, merchantCode, readerID string, amount CheckoutAmount) (*ReaderCheckout, error) {
	var result struct {
		Data ReaderCheckout `json:"data"`
	}
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers/%s/checkout", merchantCode, readerID)
	payload := map[string]interface{}{"total_amount": amount}
	if err := s.makeRequest(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (s *SumUpService) TerminateReaderCheckout(ctx context.Context, merchantCode, readerID string) error {
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers/%s/terminate", merchantCode, readerID)
	return s.makeRequest(ctx, http.MethodPost, endpoint, nil, nil)
}

func (s *SumUpService) GetTransaction(ctx context.Context, merchantCode, clientTransactionID string) (*Transaction, error) {
	var result Transaction
	endpoint := fmt.Sprintf(
		"/v2.1/merchants/%s/transactions?client_transaction_id=%s",
		merchantCode,
		url.QueryEscape(clientTransactionID),
	)
	if err := s.makeRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *SumUpService) RefundTransaction(ctx context.Context, transactionID string, amount float64) error {
	endpoint := fmt.Sprintf("/v0.1/me/refund/%s", transactionID)
	return s.makeRequest(ctx, http.MethodPost, endpoint, map[string]interface{}{"amount": amount}, nil)
}

func (s *SumUpService) CreateReader(ctx context.Context, merchantCode, pairingCode, name string) (*Reader, error) {
	var result Reader
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers", merchantCode)
	payload := map[string]string{"pairing_code": pairingCode, "name": name}
	if err := s.makeRequest(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *SumUpService) ListReaders(ctx context.Context, merchantCode string) ([]Reader, error) {
	var result struct {
		Items []Reader `json:"items"`
	}
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers", merchantCode)
	if err := s.makeRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (s *SumUpService) GetReaderStatus(ctx context.Context, merchantCode, readerID string) (*ReaderDeviceStatus, error) {
	var result struct {
		Data ReaderDeviceStatus `json:"data"`
	}
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers/%s/status", merchantCode, readerID)
	if err := s.makeRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (s *SumUpService) DeleteReader(ctx context.Context, merchantCode, readerID string) error {
	endpoint := fmt.Sprintf("/v0.1/merchants/%s/readers/%s", merchantCode, readerID)
	return s.makeRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (s *SumUpService) GetMerchantProfile(ctx context.Context, merchantCode string) (*MerchantProfile, error) {
	var result MerchantProfile
	endpoint := fmt.Sprintf("/v0.1/merchants/%s", merchantCode)
	if err := s.makeRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
