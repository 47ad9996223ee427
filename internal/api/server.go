// Package api exposes the relay, the question store and the chat
// controllers over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/browse"
	"github.com/pbaille/studylog/internal/chat"
	"github.com/pbaille/studylog/internal/domain"
	"github.com/pbaille/studylog/internal/relay"
	"github.com/pbaille/studylog/internal/store"
)

// Config holds HTTP server settings
type Config struct {
	Host        string
	Port        int
	VisionModel string
}

// Server handles HTTP requests for the study log
type Server struct {
	echo     *echo.Echo
	store    *store.Store
	relay    chat.Relay
	sessions *chat.Sessions
	browser  *browse.Browser
	logger   *zap.Logger
	config   *Config
	now      func() time.Time
}

// NewServer wires the routes. The relay may be nil, in which case the relay
// and send endpoints answer 503.
func NewServer(st *store.Store, r chat.Relay, sessions *chat.Sessions, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(requestLogger(logger))

	s := &Server{
		echo:     e,
		store:    st,
		relay:    r,
		sessions: sessions,
		browser:  browse.New(st),
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler set the final status before logging
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	// Relay
	api.POST("/chat-stream", s.handleChatStream)
	api.POST("/chat-vision", s.handleChatVision)

	// Taxonomy
	api.GET("/taxonomy", s.handleTaxonomy)
	api.POST("/subjects", s.handleCreateSubject)
	api.PATCH("/subjects/:subject", s.handleRenameSubject)
	api.DELETE("/subjects/:subject", s.handleDeleteSubject)
	api.POST("/subjects/:subject/units", s.handleCreateUnit)
	api.PATCH("/subjects/:subject/units/:unit", s.handleRenameUnit)
	api.DELETE("/subjects/:subject/units/:unit", s.handleDeleteUnit)

	// Transcripts
	api.GET("/days", s.handleDays)
	for _, prefix := range []string{"/days/:date", "/units/:subject/:unit"} {
		api.GET(prefix+"/entries", s.handleEntries)
		api.PATCH(prefix+"/entries/:index", s.handleUpdateEntry)
		api.DELETE(prefix+"/entries/:index", s.handleDeletePair)
		api.POST(prefix+"/entries/:index/move", s.handleMovePair)
	}

	// Chat
	api.POST("/days/:date/send", s.handleSend)

	// Browser
	api.GET("/questions", s.handleQuestions)
	api.GET("/stats", s.handleStats)
	api.POST("/import", s.handleImport)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := ErrorResponse{Error: "internal error"}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case ErrorResponse:
				body = m
			case string:
				body = ErrorResponse{Error: m}
			default:
				body = ErrorResponse{Error: http.StatusText(code)}
			}
		} else {
			logger.Error("unhandled error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

// httpError maps domain errors to status codes
func (s *Server) httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNoPair), errors.Is(err, store.ErrNoEntry), errors.Is(err, store.ErrUnknownLocation):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrSameLocation), errors.Is(err, store.ErrExists), errors.Is(err, store.ErrReserved):
		code = http.StatusConflict
	case errors.Is(err, chat.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, chat.ErrEmptyInput):
		code = http.StatusBadRequest
	}

	if code == http.StatusInternalServerError {
		var up *relay.UpstreamError
		if errors.As(err, &up) {
			return echo.NewHTTPError(code, ErrorResponse{Error: "upstream request failed", Message: up.Message})
		}
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(code, "internal error")
	}
	return echo.NewHTTPError(code, err.Error())
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// param returns a path parameter, unescaped
func param(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func dayParam(c echo.Context) (string, error) {
	day := param(c, "date")
	if _, err := time.ParseInLocation(domain.DayLayout, day, time.Local); err != nil {
		return "", badRequest(fmt.Sprintf("invalid date %q, want YYYY-MM-DD", day))
	}
	return day, nil
}

// location reads either :date or :subject/:unit
func location(c echo.Context) (domain.Location, error) {
	if c.Param("date") != "" {
		day, err := dayParam(c)
		if err != nil {
			return domain.Location{}, err
		}
		return domain.DayLocation(day), nil
	}
	loc := domain.UnitLocation(param(c, "subject"), param(c, "unit"))
	if !loc.Valid() {
		return domain.Location{}, badRequest("subject and unit are required")
	}
	return loc, nil
}

func indexParam(c echo.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, badRequest("index must be an integer")
	}
	return i, nil
}

func (s *Server) requireRelay() error {
	if s.relay == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, relay.ErrNoAPIKey.Error())
	}
	return nil
}
