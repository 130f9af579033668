package ingest

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// apiKeyMiddleware implements spec.md §4.5's auth gate and testable
// property 7: with apiKey empty, auth is disabled (dev mode); with it
// set, every request must carry the same value via the X-API-Key
// header or an api_key query parameter. Grounded on
// original_source/norn/shared.py::verify_api_key.
func apiKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if apiKey == "" {
				return next(c)
			}
			if !validAPIKey(c, apiKey) {
				return writeError(c, http.StatusUnauthorized, "invalid or missing API key", "auth")
			}
			return next(c)
		}
	}
}

func validAPIKey(c *echo.Context, apiKey string) bool {
	got := c.Request().Header.Get("X-API-Key")
	if got == "" {
		got = c.QueryParam("api_key")
	}
	return got == apiKey
}
