package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"sumup_pos_app/internal/services"
)

type DebugHandler struct {
	cache *services.RedisCache
	debug *services.DebugSink
}

func NewDebugHandler(cache *services.RedisCache, debug *services.DebugSink) *DebugHandler {
	return &DebugHandler{cache: cache, debug: debug}
}

// Events streams refund debug events over server-sent events. Requires
// debug logging to be enabled and a configured redis.
func (h *DebugHandler) Events(c echo.Context) error {
	if h.cache == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "redis is not configured")
	}
	if !h.debug.Enabled() {
		return echo.NewHTTPError(http.StatusForbidden, "debug logging is disabled")
	}

	ctx := c.Request().Context()
	sub := h.cache.Subscribe(ctx, services.RefundDebugChannel)
	defer sub.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", msg.Payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
