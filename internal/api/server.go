package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/symptom-assessment-server/internal/domain"
	"github.com/symptom-assessment-server/internal/middleware"
	"github.com/symptom-assessment-server/internal/service"
)

// Assessor runs the symptom assessment pipeline
type Assessor interface {
	Assess(ctx context.Context, input domain.SymptomInput) *domain.Assessment
}

// SourceHealth exposes the breaker state of an evidence source
type SourceHealth interface {
	Name() domain.EvidenceSourceName
	State() gobreaker.State
}

// Pinger is implemented by stores that can report connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server
type Options struct {
	Config            domain.ServerConfig
	Assessor          Assessor
	Store             domain.AssessmentStore // nil disables persistence
	Policy            service.AppointmentPolicy
	Sources           []SourceHealth
	DocumentCharLimit int
	Version           string
	Logger            *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	cfg       domain.ServerConfig
	assessor  Assessor
	store     domain.AssessmentStore
	policy    service.AppointmentPolicy
	sources   []SourceHealth
	docLimit  int
	version   string
	logger    *logrus.Logger
	router    *gin.Engine
	server    *http.Server
	startedAt time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Assessor == nil {
		return nil, fmt.Errorf("assessor is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Policy == nil {
		opts.Policy = service.UrgencyGatedPolicy{}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(opts.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(opts.Config.AllowedOrigins))

	s := &Server{
		cfg:       opts.Config,
		assessor:  opts.Assessor,
		store:     opts.Store,
		policy:    opts.Policy,
		sources:   opts.Sources,
		docLimit:  opts.DocumentCharLimit,
		version:   opts.Version,
		logger:    opts.Logger,
		router:    router,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	ai := s.router.Group("/api/ai")
	ai.Use(middleware.RequestTimeout(s.cfg.RequestTimeout))
	{
		ai.POST("/assess-symptoms", s.handleAssessSymptoms)
		ai.GET("/assessments", s.handleListAssessments)
		ai.GET("/assessments/:id", s.handleGetAssessment)
	}
}

// handleHealth reports liveness plus the breaker state of each evidence source
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	sources := make(map[string]string, len(s.sources))
	for _, src := range s.sources {
		state := src.State()
		sources[string(src.Name())] = state.String()
		if state != gobreaker.StateClosed {
			status = "degraded"
		}
	}

	database := "disabled"
	if s.store != nil {
		database = "ok"
		if p, ok := s.store.(Pinger); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				database = "unavailable"
				status = "degraded"
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   s.version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"sources":   sources,
		"database":  database,
	})
}

func errorBody(c *gin.Context, message string) gin.H {
	return gin.H{
		"error":      message,
		"request_id": c.GetString("request_id"),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
}

func validationBody(c *gin.Context, verr *domain.ValidationError) gin.H {
	body := errorBody(c, "validation failed")
	body["details"] = verr
	return body
}
