package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/service"
	"example.com/backstage/services/clinops/tracing"
)

// ClinicalService is what the routes call into
type ClinicalService interface {
	CreateStudy(ctx context.Context, req service.CreateStudyRequest) (service.View, error)
	UpdateStudy(ctx context.Context, id string, req service.UpdateStudyRequest) (service.View, error)
	ChangeStudyStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	GetStudy(ctx context.Context, id string) (service.View, error)
	StudyHistory(ctx context.Context, id string) ([]models.StatusHistory, error)
	ListProtocolVersions(ctx context.Context, studyID string) ([]models.ProtocolVersion, error)

	RegisterPatient(ctx context.Context, req service.RegisterPatientRequest) (service.View, error)
	UpdatePatient(ctx context.Context, id string, req service.UpdatePatientRequest) (service.View, error)
	ChangePatientStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	GetPatient(ctx context.Context, id string) (service.View, error)
	PatientHistory(ctx context.Context, id string) ([]models.StatusHistory, error)

	CreateProtocolVersion(ctx context.Context, req service.CreateProtocolVersionRequest) (service.View, error)
	UpdateProtocolVersion(ctx context.Context, id string, req service.UpdateProtocolVersionRequest) (service.View, error)
	ChangeProtocolVersionStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	GetProtocolVersion(ctx context.Context, id string) (service.View, error)
	ProtocolVersionHistory(ctx context.Context, id string) ([]models.StatusHistory, error)

	ScheduleVisit(ctx context.Context, req service.ScheduleVisitRequest) (service.View, error)
	RescheduleVisit(ctx context.Context, id string, req service.RescheduleVisitRequest) (service.View, error)
	ChangeVisitStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	GetVisit(ctx context.Context, id string) (service.View, error)
	VisitHistory(ctx context.Context, id string) ([]models.StatusHistory, error)
}

// Server is the HTTP server for the API
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	svc        ClinicalService
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, svc ClinicalService, m *metrics.Metrics, tracer tracing.Tracer) *Server {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	server := &Server{
		cfg:     cfg,
		router:  gin.New(),
		svc:     svc,
		metrics: m,
		tracer:  tracer,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	return server
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware(s.cfg.CorsOrigins))
	}
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
	if s.cfg.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(s.cfg.RateLimit, s.cfg.RateBurst))
	}
	s.router.Use(TracingMiddleware(s.tracer))
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")

	studies := v1.Group("/studies")
	{
		studies.POST("", s.createStudy)
		studies.GET("/:id", s.getStudy)
		studies.PUT("/:id", s.updateStudy)
		studies.PUT("/:id/status", s.changeStudyStatus)
		studies.GET("/:id/history", s.studyHistory)
		studies.GET("/:id/protocol-versions", s.listProtocolVersions)
	}

	patients := v1.Group("/patients")
	{
		patients.POST("", s.registerPatient)
		patients.GET("/:id", s.getPatient)
		patients.PUT("/:id", s.updatePatient)
		patients.PUT("/:id/status", s.changePatientStatus)
		patients.GET("/:id/history", s.patientHistory)
	}

	versions := v1.Group("/protocol-versions")
	{
		versions.POST("", s.createProtocolVersion)
		versions.GET("/:id", s.getProtocolVersion)
		versions.PUT("/:id", s.updateProtocolVersion)
		versions.PUT("/:id/status", s.changeProtocolVersionStatus)
		versions.GET("/:id/history", s.protocolVersionHistory)
	}

	visits := v1.Group("/visits")
	{
		visits.POST("", s.scheduleVisit)
		visits.GET("/:id", s.getVisit)
		visits.PUT("/:id", s.rescheduleVisit)
		visits.PUT("/:id/status", s.changeVisitStatus)
		visits.GET("/:id/history", s.visitHistory)
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Address).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
