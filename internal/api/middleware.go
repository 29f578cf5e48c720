package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderOrganizationID = "X-Organization-ID"
)

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(tenant.WithRequestID(r.Context(), requestID)))
	})
}

// Tenant scopes the request to the organization in X-Organization-ID.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if organizationID := r.Header.Get(HeaderOrganizationID); organizationID != "" {
			r = r.WithContext(tenant.WithOrganizationID(r.Context(), organizationID))
		}
		next.ServeHTTP(w, r)
	})
}

// Metrics records status and latency per route pattern and logs the request.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		observer.ObserveHTTPRequest(r.Method, route, status, time.Since(start))

		logger.FromContext(r.Context()).Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
