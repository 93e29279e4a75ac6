// Package server exposes the agent over HTTP (echo) and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/nexuslabs/nexus-go/engine"
	"github.com/nexuslabs/nexus-go/logging"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// Config configures the HTTP surface.
type Config struct {
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64

	// AllowedOrigins feeds CORS and the WebSocket origin check. Empty or "*" allows all.
	AllowedOrigins []string
}

// Server routes HTTP requests to the engine.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// New creates a Server with all routes registered.
func New(eng *engine.Engine, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo:   e,
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.POST("/chat", s.handleChat)
	e.GET("/ws", s.handleWebSocket)

	e.GET("/memory/stats", s.handleStats)
	e.POST("/memory/query", s.handleQueryMemory)
	e.GET("/memory/episodes", s.handleEpisodes)
	e.GET("/memory/episodes/search", s.handleSearchEpisodes)
	e.DELETE("/memory/clear", s.handleClear)
	e.DELETE("/memory/:id", s.handleDeleteMemory)

	e.GET("/learning/patterns", s.handlePatterns)
	e.GET("/learning/skills", s.handleSkills)
	e.POST("/learning/skills/:name/feedback", s.handleSkillFeedback)

	e.GET("/tools", s.handleTools)
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	logging.For("server").Info().Str("addr", addr).Msg("listening")
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// errorHandler renders every error as {"detail": message}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		logging.For("server").Error().Err(err).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"detail": detail})
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.For("server").Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

func rateLimiter(perSecond float64) echo.MiddlewareFunc {
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range allowedOrigins(origins) {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		if allowed["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
