package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pelora/outreach/internal/campaign"
	"github.com/pelora/outreach/internal/metrics"
	"github.com/pelora/outreach/internal/quota"
	"github.com/pelora/outreach/internal/repository"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	campaigns  *campaign.Service
	quota      *quota.Service
	tenants    *repository.TenantRepository
	templates  *repository.TemplateRepository
	consumers  *repository.ConsumerRepository
	optOuts    *repository.OptOutRepository
	deliveries *repository.DeliveryRepository
	campRepo   *repository.CampaignRepository

	metrics    *metrics.Metrics
	logger     *slog.Logger
	listenAddr string
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(db *sql.DB, campaigns *campaign.Service, quotaSvc *quota.Service, m *metrics.Metrics, listenAddr string, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		campaigns:  campaigns,
		quota:      quotaSvc,
		tenants:    repository.NewTenantRepository(db),
		templates:  repository.NewTemplateRepository(db),
		consumers:  repository.NewConsumerRepository(db),
		optOuts:    repository.NewOptOutRepository(db),
		deliveries: repository.NewDeliveryRepository(db),
		campRepo:   repository.NewCampaignRepository(db),
		metrics:    m,
		logger:     logger.With("component", "api"),
		listenAddr: listenAddr,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health and metrics need no tenant scope
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Transport providers post delivery events here, keyed by message
	// id rather than tenant.
	s.router.Post("/events/delivery", s.handleDeliveryEvent)

	// Tenant-scoped API
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.tenantMiddleware)

		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/approve", s.handleApproveCampaign)
		r.Post("/campaigns/{id}/cancel", s.handleCancelCampaign)
		r.Delete("/campaigns/{id}", s.handleDeleteCampaign)
		r.Get("/campaigns/{id}/deliveries", s.handleListDeliveries)

		r.Post("/templates", s.handleCreateTemplate)
		r.Get("/templates", s.handleListTemplates)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Put("/templates/{id}", s.handleUpdateTemplate)
		r.Delete("/templates/{id}", s.handleDeleteTemplate)
		r.Post("/templates/{id}/preview", s.handlePreviewTemplate)

		r.Post("/optouts", s.handleCreateOptOut)
		r.Get("/quota", s.handleQuota)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.listenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
		Uptime:  time.Since(s.startTime).String(),
	})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
