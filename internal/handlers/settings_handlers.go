package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
	"sumup_pos_app/internal/services"
)

type SettingsHandler struct {
	db       *gorm.DB
	settings *services.SettingsService
}

func NewSettingsHandler(db *gorm.DB, settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{db: db, settings: settings}
}

// Get returns the sumup settings, creating the disabled default on first use.
func (h *SettingsHandler) Get(c echo.Context) error {
	settings, err := services.GetSettings(h.db)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

type settingsRequest struct {
	Enabled            *bool   `json:"enabled"`
	MerchantCode       *string `json:"merchant_code"`
	EnableDebugLogging *bool   `json:"enable_debug_logging"`
	EnableRecoveryMode *bool   `json:"enable_recovery_mode"`
}

// Update patches the settings row. The merchant currency is deliberately
// not writable here; it comes from the connection test.
func (h *SettingsHandler) Update(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	settings, err := services.GetSettings(h.db)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.MerchantCode != nil {
		updates["merchant_code"] = *req.MerchantCode
	}
	if req.EnableDebugLogging != nil {
		updates["enable_debug_logging"] = *req.EnableDebugLogging
	}
	if req.EnableRecoveryMode != nil {
		updates["enable_recovery_mode"] = *req.EnableRecoveryMode
	}
	if len(updates) > 0 {
		if err := h.db.Model(&models.Settings{}).Where("id = ?", settings.ID).Updates(updates).Error; err != nil {
			return err
		}
	}

	refreshed, err := services.GetSettings(h.db)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refreshed)
}

// TestConnection verifies the api key and merchant code against sumup and
// persists the merchant currency.
func (h *SettingsHandler) TestConnection(c echo.Context) error {
	result, err := h.settings.TestConnection(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
