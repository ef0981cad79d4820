package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// loggingMiddleware logs HTTP requests and feeds the API metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		// The route pattern keeps metric cardinality bounded; raw paths
		// would mint a series per campaign id.
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		s.metrics.APIRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		s.metrics.APIRequestDurationSeconds.WithLabelValues(r.Method, pattern).Observe(duration.Seconds())

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", duration,
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// tenantMiddleware resolves the X-Tenant-ID header and scopes the
// request to that tenant. Every /api/v1 route requires it.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			s.sendError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}

		tenant, err := s.tenants.GetByID(tenantID)
		if err != nil {
			s.logger.Error("failed to look up tenant", "tenant_id", tenantID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to resolve tenant")
			return
		}
		if tenant == nil {
			s.sendError(w, http.StatusUnauthorized, "Unknown tenant")
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenant.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantID returns the tenant scope set by tenantMiddleware.
func tenantID(r *http.Request) string {
	id, _ := r.Context().Value(tenantIDKey).(string)
	return id
}
