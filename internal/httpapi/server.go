// Package httpapi serves the status dashboard, the pairing page and the
// health endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/connection"
)

// Status exposes the connection view rendered by the pages.
type Status interface {
	State() connection.State
	Pairing() *connection.Pairing
}

// Server is the HTTP status server.
type Server struct {
	echo    *echo.Echo
	http    *http.Server
	status  Status
	started time.Time
	logger  *slog.Logger
}

// NewServer builds the routes. The server does not listen until Run.
func NewServer(cfg config.HTTPConfig, status Status, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.DebugContext(c.Request().Context(), "HTTP request",
				"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "remote_ip", v.RemoteIP)
			return nil
		},
	}))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RateLimit),
			Burst:     cfg.RateLimitBurst,
			ExpiresIn: 15 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too Many Requests"})
		},
	}))

	s := &Server{
		echo:    e,
		status:  status,
		started: time.Now(),
		logger:  log,
	}

	e.GET("/", s.handleDashboard)
	e.GET("/qr", s.handlePairing)
	e.GET("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           e,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Run listens until ctx is cancelled, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "HTTP handler failed", "uri", c.Request().RequestURI, "error", err)
		}
		if err := c.JSON(code, map[string]string{"error": http.StatusText(code)}); err != nil {
			log.Error("Failed to write error response", "error", err)
		}
	}
}

func (s *Server) handleDashboard(c echo.Context) error {
	return render(c, dashboardTmpl, map[string]string{
		"State": s.status.State().String(),
	})
}

func (s *Server) handlePairing(c echo.Context) error {
	code, updated, ok := s.status.Pairing().Get()
	if !ok {
		return render(c, connectedTmpl, map[string]string{
			"State": s.status.State().String(),
		})
	}
	return render(c, pairingTmpl, map[string]string{
		"Code":    code,
		"Updated": updated.UTC().Format(time.RFC3339),
	})
}

// Health is the /health response body.
type Health struct {
	Status     string       `json:"status"`
	Uptime     int64        `json:"uptime"`
	Connection string       `json:"connection"`
	Memory     HealthMemory `json:"memory"`
	Goroutines int          `json:"goroutines"`
	Timestamp  string       `json:"timestamp"`
}

// HealthMemory reports runtime memory in megabytes.
type HealthMemory struct {
	Sys       string `json:"sys"`
	HeapAlloc string `json:"heapAlloc"`
	HeapSys   string `json:"heapSys"`
}

func (s *Server) handleHealth(c echo.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return c.JSON(http.StatusOK, Health{
		Status:     "ok",
		Uptime:     int64(time.Since(s.started).Seconds()),
		Connection: s.status.State().String(),
		Memory: HealthMemory{
			Sys:       megabytes(m.Sys),
			HeapAlloc: megabytes(m.HeapAlloc),
			HeapSys:   megabytes(m.HeapSys),
		},
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func megabytes(b uint64) string {
	return strconv.FormatUint(b/1024/1024, 10) + " MB"
}

func render(c echo.Context, tmpl *template.Template, data any) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return tmpl.Execute(c.Response(), data)
}
