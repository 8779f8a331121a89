package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sentinel application errors. Handlers return these directly (as *apiError
// values or errUsed); the centralized error handler below renders them,
// passes an *echo.HTTPError through with its own status code, and maps
// anything else to a generic 500.

// apiError is a small JSON-body HTTP error: {"error": label}.
type apiError struct {
	status int
	label  string
}

func (e *apiError) Error() string { return e.label }

func newAPIError(status int, label string) error {
	return &apiError{status: status, label: label}
}

// Error kind constructors, named after the taxonomy: MalformedRequest (400),
// NotFound (404), Conflict (409), RateLimited (429), MetricsUnavailable
// (503), MetricsRead (500).
func errMalformedRequest(label string) error { return newAPIError(http.StatusBadRequest, label) }
func errNotFound(label string) error         { return newAPIError(http.StatusNotFound, label) }
func errConflict(label string) error         { return newAPIError(http.StatusConflict, label) }
func errRateLimited() error                  { return newAPIError(http.StatusTooManyRequests, "rate_limited") }
func errMetricsUnavailable() error {
	return newAPIError(http.StatusServiceUnavailable, "metrics_disabled")
}
func errMetricsRead() error { return newAPIError(http.StatusInternalServerError, "metrics_read_failed") }

// errUsed is the OTM/file "not found" variant: it deliberately does not
// distinguish "never existed" from "already consumed", returning {used:true}
// in place of the usual {error:"..."} body.
var errUsed = errors.New("used")

type usedBody struct {
	Used bool `json:"used"`
}

type errorBody struct {
	Error string `json:"error"`
}

// httpErrorHandler is installed as the Echo app's centralized error handler.
// It maps apiError and errUsed to their documented JSON bodies and status
// codes, and logs anything else as an internal error before returning a
// generic 500.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apiError
	if errors.As(err, &ae) {
		_ = c.JSON(ae.status, errorBody{Error: ae.label})
		return
	}
	if errors.Is(err, errUsed) {
		_ = c.JSON(http.StatusNotFound, usedBody{Used: true})
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		_ = c.JSON(he.Code, errorBody{Error: msg})
		return
	}

	slog.Error("unhandled request error", "path", c.Request().URL.Path, "err", err)
	_ = c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error"})
}
