// Package httpapi wires the registry, pipeline, blacklist, emoji and
// audit services onto one Echo application: the viewer and upstream
// WebSocket upgrade routes plus the REST admin/observability endpoints.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"danmaku-gateway/internal/audit"
	"danmaku-gateway/internal/blacklist"
	"danmaku-gateway/internal/emoji"
	"danmaku-gateway/internal/limits"
	"danmaku-gateway/internal/pipeline"
	"danmaku-gateway/internal/registry"
	"danmaku-gateway/internal/ws"
)

// Version is the gateway's version string, set at build time via
// -ldflags (e.g. -X danmaku-gateway/internal/httpapi.Version=1.2.3).
var Version = "dev"

// Server is the Echo application exposing every HTTP and WebSocket
// route of the gateway.
type Server struct {
	echo *echo.Echo

	registry    *registry.Registry
	pipeline    *pipeline.Pipeline
	blacklist   *blacklist.Service
	emoji       *emoji.Service
	emojiCache  *emoji.Cache
	audit       *audit.Log
	limits      *limits.Manager
	upstreamTok string
}

// New constructs the Echo app and registers every route. audit may be
// nil, in which case the audit endpoint reports an empty list. limiter
// may be nil, in which case connections are never capped.
func New(
	reg *registry.Registry,
	pl *pipeline.Pipeline,
	bl *blacklist.Service,
	emojiSvc *emoji.Service,
	emojiCache *emoji.Cache,
	auditLog *audit.Log,
	limiter *limits.Manager,
	upstreamToken string,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:        e,
		registry:    reg,
		pipeline:    pl,
		blacklist:   bl,
		emoji:       emojiSvc,
		emojiCache:  emojiCache,
		audit:       auditLog,
		limits:      limiter,
		upstreamTok: upstreamToken,
	}
	s.registerRoutes()
	return s
}

// requestLogger logs every request via slog, quieting the high-frequency
// WebSocket and health paths to debug level.
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
			switch path {
			case "/health":
				slog.Debug("http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds())
			default:
				if isDanmakuSocket(path) {
					slog.Debug("http request",
						"method", req.Method, "path", path,
						"status", c.Response().Status,
						"duration_ms", time.Since(start).Milliseconds())
					return nil
				}
				slog.Info("http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP())
			}
			return nil
		}
	}
}

func isDanmakuSocket(path string) bool {
	const viewerPrefix = "/api/danmaku/v1/danmaku/"
	return path == "/api/danmaku/v1/upstream" ||
		(len(path) >= len(viewerPrefix) && path[:len(viewerPrefix)] == viewerPrefix)
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/danmaku/v1/state", s.handleState)
	s.echo.GET("/api/danmaku/v1/audit", s.handleAudit)
	s.echo.GET("/api/danmaku/v1/danmaku/:channel", s.handleViewerSocket)
	s.echo.GET("/api/danmaku/v1/upstream", s.handleUpstreamSocket)
	if s.emoji != nil {
		s.echo.GET("/api/emoji/:key", s.handleEmojiFetch)
	}
}

// Echo exposes the underlying Echo instance, for tests and for embedding
// in a larger mux.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run starts the Echo server on addr and blocks until ctx is cancelled
// or the server fails to start. On cancellation it shuts down within a
// bounded timeout.
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

func (s *Server) handleViewerSocket(c echo.Context) error {
	channel := c.Param("channel")
	if channel == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel is required")
	}
	if !s.tryAcquire(c) {
		return nil
	}
	defer s.release(c)
	ws.ServeViewer(s.registry, channel, c.Response(), c.Request())
	return nil
}

func (s *Server) handleUpstreamSocket(c echo.Context) error {
	if !s.tryAcquire(c) {
		return nil
	}
	defer s.release(c)
	ws.ServeUpstream(s.pipeline, s.registry, s.upstreamTok, c.Response(), c.Request())
	return nil
}

// tryAcquire enforces the connection cap, rejecting over-limit callers
// with a WebSocket close code 1013 rather than an HTTP error, since the
// caller is attempting an upgrade. Returns false (having already replied)
// when the connection should not proceed.
func (s *Server) tryAcquire(c echo.Context) bool {
	if s.limits == nil {
		return true
	}
	ip := c.RealIP()
	if !s.limits.Acquire(ip) {
		slog.Warn("connection rejected, over limit", "ip", ip, "path", c.Request().URL.Path)
		ws.RejectTryAgainLater(c.Response(), c.Request())
		return false
	}
	return true
}

func (s *Server) release(c echo.Context) {
	if s.limits == nil {
		return
	}
	s.limits.Release(c.RealIP())
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
	return c.JSON(http.StatusOK, versionResponse{Version: Version})
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func (s *Server) handleAudit(c echo.Context) error {
	if s.audit == nil {
		return c.JSON(http.StatusOK, auditResponse{Entries: []audit.Entry{}})
	}
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := s.audit.Recent(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return c.JSON(http.StatusOK, auditResponse{Entries: entries})
}
