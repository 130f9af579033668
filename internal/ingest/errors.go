package ingest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hashtagemy/guard/internal/store"
	echo "github.com/labstack/echo/v5"
)

// writeError writes the {detail, error_type?} body spec.md §6 requires
// for every non-2xx response, and is used directly (rather than
// echo.NewHTTPError) so the exact response shape never depends on
// Echo's default error-serialization behavior.
func writeError(c *echo.Context, status int, detail, errorType string) error {
	body := map[string]any{"detail": detail}
	if errorType != "" {
		body["error_type"] = errorType
	}
	return c.JSON(status, body)
}

// mapStoreError translates a store-layer failure into the right HTTP
// response: ErrNotFound becomes 404, anything else is logged and
// surfaced as a generic 500 (spec.md §7 "not-found" / "storage-failure").
func mapStoreError(c *echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, http.StatusNotFound, "not found", "not_found")
	}
	slog.Error("ingest: store operation failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "internal server error", "internal")
}

// errorMiddleware is installed outermost so every error that escapes a
// handler or inner middleware — including the router's own not-found
// and method-not-allowed errors — produces the same {detail,
// error_type?} JSON body (spec.md §7 "converts exceptions to
// structured HTTP errors via a single global handler").
func errorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			err := next(c)
			if err == nil {
				return err
			}
			if resp, uerr := echo.UnwrapResponse(c.Response()); uerr == nil && resp.Committed {
				return err
			}

			var he *echo.HTTPError
			if errors.As(err, &he) {
				return writeError(c, he.Code, http.StatusText(he.Code), "")
			}

			slog.Error("ingest: unhandled error", "error", err)
			return writeError(c, http.StatusInternalServerError, "internal server error", "internal")
		}
	}
}
