package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newProtectedServer(apiKey string) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = CustomErrorHandler
	g := e.Group("/api")
	g.Use(RequireAPIKey(apiKey))
	g.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	return e
}

func TestRequireAPIKey(t *testing.T) {
	t.Run("valid key passes", func(t *testing.T) {
		e := newProtectedServer("secret")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("X-Api-Key", "secret")
		e.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		e := newProtectedServer("secret")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		e.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		e := newProtectedServer("secret")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("X-Api-Key", "nope")
		e.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no configured key disables the check", func(t *testing.T) {
		e := newProtectedServer("")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		e.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
