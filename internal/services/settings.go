package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
)

var (
	ErrSumUpDisabled       = errors.New("sumup is disabled in settings")
	ErrMerchantCodeMissing = errors.New("merchant code is missing in sumup settings")
)

// GetSettings loads the singleton settings row, creating a disabled default
// when none exists yet.
func GetSettings(db *gorm.DB) (*models.Settings, error) {
	var settings models.Settings
	err := db.First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.Settings{}
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// requireMerchantContext returns the merchant code for gateway calls, or an
// error when SumUp is disabled or unconfigured.
func requireMerchantContext(db *gorm.DB) (string, *models.Settings, error) {
	settings, err := GetSettings(db)
	if err != nil {
		return "", nil, err
	}
	if !settings.Enabled {
		return "", settings, ErrSumUpDisabled
	}
	merchantCode := strings.TrimSpace(settings.MerchantCode)
	if merchantCode == "" {
		return "", settings, ErrMerchantCodeMissing
	}
	return merchantCode, settings, nil
}

// ConnectionResult is the outcome of a settings connection test.
type ConnectionResult struct {
	MerchantCode     string `json:"merchant_code"`
	MerchantCurrency string `json:"merchant_currency"`
	Message          string `json:"message"`
}

// SettingsService validates the SumUp configuration against the live API.
type SettingsService struct {
	db     *gorm.DB
	cache  *RedisCache
	client SumUpClient
}

func NewSettingsService(db *gorm.DB, cache *RedisCache, client SumUpClient) *SettingsService {
	return &SettingsService{db: db, cache: cache, client: client}
}

// TestConnection fetches the merchant profile and persists the merchant
// currency so invoice currency validation can run offline afterwards.
func (s *SettingsService) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	settings, err := GetSettings(s.db)
	if err != nil {
		return nil, err
	}

	merchantCode := strings.TrimSpace(settings.MerchantCode)
	if merchantCode == "" {
		return nil, ErrMerchantCodeMissing
	}

	profile, err := s.fetchMerchantProfile(ctx, merchantCode)
	if err != nil {
		return nil, fmt.Errorf("sumup connection test failed: %w", err)
	}

	if profile.Currency != "" {
		if err := s.db.Model(settings).Update("merchant_currency", profile.Currency).Error; err != nil {
			return nil, err
		}
	}

	return &ConnectionResult{
		MerchantCode:     merchantCode,
		MerchantCurrency: profile.Currency,
		Message:          fmt.Sprintf("Connection successful. Merchant code: %s", merchantCode),
	}, nil
}

func (s *SettingsService) fetchMerchantProfile(ctx context.Context, merchantCode string) (*MerchantProfile, error) {
	if s.cache == nil {
		return s.client.GetMerchantProfile(ctx, merchantCode)
	}
	return GetOrSet(s.cache, ctx, "sumup:merchant:"+merchantCode, time.Hour, func() (*MerchantProfile, error) {
		return s.client.GetMerchantProfile(ctx, merchantCode)
	})
}
