package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"sumup_pos_app/internal/services"
)

type TerminalHandler struct {
	terminals *services.TerminalService
}

func NewTerminalHandler(terminals *services.TerminalService) *TerminalHandler {
	return &TerminalHandler{terminals: terminals}
}

func terminalIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid terminal id")
	}
	return uint(id), nil
}

// List returns all registered terminals.
func (h *TerminalHandler) List(c echo.Context) error {
	terminals, err := h.terminals.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, terminals)
}

type pairRequest struct {
	Name         string `json:"name"`
	PairingCode  string `json:"pairing_code"`
	MerchantCode string `json:"merchant_code"`
}

// Pair registers a reader using the code shown on its screen.
func (h *TerminalHandler) Pair(c echo.Context) error {
	var req pairRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "terminal name is required")
	}

	result, err := h.terminals.Pair(c.Request().Context(), req.Name, req.PairingCode, req.MerchantCode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type refreshRequest struct {
	Names []string `json:"names"`
}

// Refresh re-reads statuses for the named terminals, or all of them.
func (h *TerminalHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	report, err := h.terminals.RefreshStatuses(c.Request().Context(), req.Names, true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type removeRequest struct {
	Names []string `json:"names"`
}

// RemoveMany unpairs the named terminals, reporting per-terminal failures.
func (h *TerminalHandler) RemoveMany(c echo.Context) error {
	var req removeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Names) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one terminal name is required")
	}
	report, err := h.terminals.RemoveMany(c.Request().Context(), req.Names)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ForceRemoveMany deletes the named rows locally only. Debug-gated.
func (h *TerminalHandler) ForceRemoveMany(c echo.Context) error {
	var req removeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Names) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one terminal name is required")
	}
	report, err := h.terminals.ForceRemoveMany(req.Names)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// Remove unpairs the terminal at sumup and deletes the local row.
func (h *TerminalHandler) Remove(c echo.Context) error {
	id, err := terminalIDParam(c)
	if err != nil {
		return err
	}
	report, err := h.terminals.Remove(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ForceRemove deletes only the local row. Debug-gated.
func (h *TerminalHandler) ForceRemove(c echo.Context) error {
	id, err := terminalIDParam(c)
	if err != nil {
		return err
	}
	report, err := h.terminals.ForceRemove(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// Recover rebuilds the registry from the readers at the merchant account.
func (h *TerminalHandler) Recover(c echo.Context) error {
	report, err := h.terminals.Recover(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
