// Package server exposes the verification pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/pipeline"
)

// RequestIDHeader carries the per-request ID
const RequestIDHeader = "X-Request-ID"

// Verifier is the pipeline surface the server needs
type Verifier interface {
	Verify(ctx context.Context, text string) (*model.VerificationResponse, error)
	Info() pipeline.Info
}

// Config configures the HTTP transport
type Config struct {
	MaxClaimLength int // runes
	Version        string
}

// VerifyRequest is the body of POST /v1/verify
type VerifyRequest struct {
	Claim string `json:"claim"`
}

// Server routes HTTP requests to a Verifier
type Server struct {
	verifier Verifier
	metrics  http.Handler
	cfg      Config
	logger   *slog.Logger
	engine   *gin.Engine
}

// New builds the router. metrics may be nil, in which case /metrics is not served.
func New(verifier Verifier, metrics http.Handler, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxClaimLength <= 0 {
		cfg.MaxClaimLength = 1000
	}

	s := &Server{
		verifier: verifier,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
		v1.GET("/info", s.handleInfo)
	}
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "factrag verification service",
		"status":  "ready",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.verifier.Info())
}

func (s *Server) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	claim := strings.TrimSpace(req.Claim)
	if claim == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Claim cannot be empty"})
		return
	}
	if utf8.RuneCountInString(claim) > s.cfg.MaxClaimLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Claim too long",
			"max":   s.cfg.MaxClaimLength,
		})
		return
	}

	resp, err := s.verifier.Verify(c.Request.Context(), claim)
	if err != nil {
		s.logger.Error("verification failed", "error", err, "request_id", c.GetString(RequestIDHeader))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// requestID propagates or assigns X-Request-ID
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"request_id", c.GetString(RequestIDHeader))
	}
}
