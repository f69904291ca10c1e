// Package httpserver exposes the split, dispatch and directory operations
// over a JSON HTTP API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/slipmail/slipmail/internal/model"
)

const defaultMaxUploadBytes = 64 << 20

// Splitter turns a composite upload into stored single-page artifacts.
type Splitter interface {
	Split(ctx context.Context, sourceName string, data []byte) ([]model.Artifact, error)
}

// Registry holds the current artifact generation.
type Registry interface {
	ReplaceAll(artifacts []model.Artifact) (uint64, error)
	Get(id string) (model.Artifact, error)
	Snapshot() model.Generation
}

// BlobReader serves stored artifact bytes.
type BlobReader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Dispatcher sends bound artifacts.
type Dispatcher interface {
	Dispatch(ctx context.Context, bindings []model.Binding, tmpl model.MessageTemplate) (model.DispatchSummary, error)
}

// MailVerifier checks SMTP connectivity and authentication.
type MailVerifier interface {
	Verify(ctx context.Context) error
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the API is built on. Verifier and Health are
// optional.
type Deps struct {
	Splitter   Splitter
	Registry   Registry
	Blobs      BlobReader
	Dispatcher Dispatcher
	Directory  model.Directory
	History    model.DispatchHistory
	Verifier   MailVerifier
	Health     Pinger
}

// Config controls listener and request policy.
type Config struct {
	Addr           string
	PublicBaseURL  string
	MaxUploadBytes int64

	// StrictBindings rejects dispatch requests that bind a recipient twice.
	StrictBindings bool
}

// Server provides the HTTP API.
type Server struct {
	cfg       Config
	deps      Deps
	log       zerolog.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	errc      chan error
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config, deps Deps, log zerolog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		deps:      deps,
		log:       log.With().Str("component", "http").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		errc:      make(chan error, 1),
	}
}

// Handler builds the router with every API route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/health", s.handleHealth)

	r.POST("/api/artifacts", s.handleSplit)
	r.GET("/api/artifacts", s.handleListArtifacts)
	r.GET("/api/artifacts/:id", s.handleGetArtifact)
	r.GET("/files/:ref", s.handleFile)

	r.POST("/api/bindings/validate", s.handleValidateBindings)
	r.POST("/api/bindings/candidates", s.handleCandidates)
	r.POST("/api/dispatch", s.handleDispatch)
	r.GET("/api/dispatches", s.handleListDispatches)
	r.GET("/api/dispatches/:id", s.handleGetDispatch)
	r.GET("/api/mail/verify", s.handleVerifyMail)

	r.GET("/api/recipients", s.handleListRecipients)
	r.POST("/api/recipients", s.handleUpsertRecipient)
	r.POST("/api/recipients/import", s.handleImportRecipients)
	r.DELETE("/api/recipients/:email", s.handleDeleteRecipient)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      10 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.serve(listener)
	return nil
}

// Err delivers the error that stopped the server from serving. A clean
// Stop delivers nothing.
func (s *Server) Err() <-chan error {
	return s.errc
}

func (s *Server) serve(listener net.Listener) {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error().Err(err).Msg("serve failed")
		s.errc <- err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "database unavailable"})
			return
		}
	}

	snap := s.deps.Registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"generation": snap.Number,
		"artifacts":  len(snap.Artifacts),
	})
}
