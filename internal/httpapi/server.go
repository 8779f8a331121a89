// Package httpapi is the relay's Echo application: the REST surface over
// the OTM, file, invite, and mailbox stores, plus health/metrics/version.
// Websocket routes are mounted separately by internal/wsapi. Grounded on
// rustyguts-bken's internal/httpapi.Server (request-logging middleware,
// centralized recovery, graceful Run/Shutdown).
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"relay/server/internal/filestore"
	"relay/server/internal/invite"
	"relay/server/internal/mailbox"
	"relay/server/internal/otm"
	"relay/server/internal/ratelimit"
	"relay/server/internal/totals"
)

// Server is the Echo application exposing the relay's REST surface.
type Server struct {
	echo *echo.Echo

	otm     *otm.Store
	files   *filestore.Store
	invites *invite.Store
	mailbox *mailbox.Queue
	limiter *ratelimit.Limiter
	totals  *totals.Sink
	version string
}

// Deps bundles every store/service the REST API depends on.
type Deps struct {
	OTM      *otm.Store
	Files    *filestore.Store
	Invites  *invite.Store
	Mailbox  *mailbox.Queue
	Limiter  *ratelimit.Limiter
	Totals   *totals.Sink
	Version  string
	// WSRoutes, if non-nil, is called with the Echo instance to let the
	// caller mount websocket routes (internal/wsapi.Handler.Register)
	// alongside the REST routes, on the same app and port.
	WSRoutes func(*echo.Echo)
}

// New constructs the Echo application with every REST route, CORS, request
// logging, and centralized error handling wired in.
func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	s := &Server{
		echo:    e,
		otm:     d.OTM,
		files:   d.Files,
		invites: d.Invites,
		mailbox: d.Mailbox,
		limiter: d.Limiter,
		totals:  d.Totals,
		version: d.Version,
	}
	s.registerRoutes()
	if d.WSRoutes != nil {
		d.WSRoutes(e)
	}

	// Unmatched routes return a 200 text banner rather than 404 — a
	// deliberate "softer" default preserved from the observed source
	// behavior rather than the more conventional 404.
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "relay server\n")
	})
	return s
}

// Echo exposes the underlying Echo instance, for tests and for mounting
// websocket routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			path := req.URL.Path
			if path == "/health" {
				slog.Debug("http request", "method", req.Method, "path", path, "status", c.Response().Status)
			} else {
				slog.Info("http request",
					"method", req.Method,
					"path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/metrics", s.handleMetrics)

	s.echo.POST("/otm", s.withBody(maxOTMBody, s.rateLimited(ratelimit.FamilyOTM, ratelimit.ActionOTMPost, s.handleOTMCreate)))
	s.echo.GET("/otm/:id", s.rateLimited(ratelimit.FamilyOTM, ratelimit.ActionOTMGet, s.handleOTMGet))

	s.echo.POST("/file", s.withBody(maxFileBody, s.rateLimited(ratelimit.FamilyFile, ratelimit.ActionFileUp, s.handleFileCreate)))
	s.echo.GET("/file/:id", s.rateLimited(ratelimit.FamilyFile, ratelimit.ActionFileDown, s.handleFileGet))

	s.echo.POST("/chat/invite", s.withBody(maxInviteCreateBody, s.rateLimited(ratelimit.FamilyChat, ratelimit.ActionChatInv, s.handleInviteCreate)))
	s.echo.GET("/chat/invite/:id", s.handleInviteGet)
	s.echo.POST("/chat/invite/:id/claim", s.withBody(maxInviteClaimBody, s.rateLimited(ratelimit.FamilyChat, ratelimit.ActionChatInv, s.handleInviteClaim)))

	s.echo.POST("/chat/message", s.withBody(maxChatMessageBody, s.rateLimited(ratelimit.FamilyChat, ratelimit.ActionChatMsg, s.handleChatMessage)))
	s.echo.GET("/chat/messages/:fp", s.handleChatMessagesGet)
	s.echo.POST("/chat/messages/ack", s.withBody(maxAckBody, s.handleChatMessagesAck))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

// withBody wraps a handler with a MaxBytesReader cap and translates an
// overrun into a hijack-and-close rather than a normal error response, per
// spec.md §7.
func (s *Server) withBody(max int64, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, max)
		err := next(c)
		if err != nil && isBodyTooLarge(err) {
			return hijackAndClose(c)
		}
		return err
	}
}

// rateLimited wraps a handler with a rate-limit check for the given
// family/action, keyed by client IP. It does not cap the body; POST routes
// combine it with withBody.
func (s *Server) rateLimited(family ratelimit.Family, action ratelimit.Action, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := ratelimit.ClientIP(c.Request().Header.Get("X-Forwarded-For"), c.Request().RemoteAddr)
		if !s.limiter.Allow(family, action, ip) {
			return errRateLimited()
		}
		return next(c)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type versionResponse struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, versionResponse{Version: s.version})
}

type metricsResponse struct {
	RoomsCreated       int64 `json:"roomsCreated"`
	OtmCreated         int64 `json:"otmCreated"`
	FilesCreated       int64 `json:"filesCreated"`
	ChatInvitesCreated int64 `json:"chatInvitesCreated"`
	ChatMessagesSent   int64 `json:"chatMessagesSent"`
}

func (s *Server) handleMetrics(c echo.Context) error {
	t, err := s.totals.ReadTotals(c.Request().Context())
	if err != nil {
		if errors.Is(err, totals.ErrDisabled) {
			return errMetricsUnavailable()
		}
		slog.Error("metrics read failed", "err", err)
		return errMetricsRead()
	}
	return c.JSON(http.StatusOK, metricsResponse{
		RoomsCreated:       t.RoomsCreated,
		OtmCreated:         t.OtmCreated,
		FilesCreated:       t.FilesCreated,
		ChatInvitesCreated: t.ChatInvitesCreated,
		ChatMessagesSent:   t.ChatMessagesSent,
	})
}

func trimmedParam(c echo.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
