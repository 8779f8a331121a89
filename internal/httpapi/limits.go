package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Body-size caps per spec.md §4.I / §6. Overruns destroy the request stream
// rather than returning a normal error response.
const (
	maxOTMBody          = 1 * 1024 * 1024  // 1 MiB
	maxFileBody         = 12 * 1024 * 1024 // 12 MiB
	maxInviteCreateBody = 100 * 1024       // 100 KiB
	maxInviteClaimBody  = 100 * 1024       // 100 KiB
	maxAckBody          = 50 * 1024        // 50 KiB
	maxChatMessageBody  = 500 * 1024       // 500 KiB
)

// bodyLimit wraps the request body in an http.MaxBytesReader capped at max
// bytes. A handler that reads past the cap gets an *http.MaxBytesError from
// the reader (see isBodyTooLarge); handlers must treat that as "destroy the
// connection", via hijackAndClose below, not as a normal 4xx response.
func bodyLimit(max int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, max)
			return next(c)
		}
	}
}

// hijackAndClose terminates the underlying TCP connection without writing
// any response, matching spec.md §7's "body-size overruns terminate the
// request stream without a response body". This is the one place the relay
// reaches below Echo's response-writer abstraction, since Echo itself has
// no vocabulary for "abort with no bytes written".
func hijackAndClose(c echo.Context) error {
	hj, ok := c.Response().Writer.(http.Hijacker)
	if !ok {
		// Not hijackable (e.g. http2, or a test ResponseRecorder); closing
		// the request body is the best available substitute.
		return c.Request().Body.Close()
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		slog.Warn("hijack failed on body-size overrun", "err", err)
		return nil
	}
	return conn.Close()
}

// isBodyTooLarge reports whether err came from a body read past a
// bodyLimit-imposed cap. Must be checked before the error is otherwise
// classified (e.g. by bindErr) — once wrapped into an *apiError the
// *http.MaxBytesError is no longer recoverable here.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
