package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the plan backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name string, detail string) {
		checks[name] = "failed: " + detail
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if s.plans == nil {
		fail("plan_backend", "not configured")
	} else if _, err := s.plans.List(ctx); err != nil {
		fail("plan_backend", err.Error())
	} else {
		checks["plan_backend"] = "ok"
	}

	if s.sessions != nil {
		checks["sessions"] = map[string]any{"active": s.sessions.Active(), "status": "ok"}
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Active()
	}

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	w.WriteHeader(http.StatusOK)
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("editing_sessions", "gauge", "Open plan editing sessions", sessions)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rateLimitMetrics.ClientCount)
	metric("security_suspicious_requests_total", "counter", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	metric("security_blocked_requests_total", "counter", "Suspicious requests rejected", securityMetrics.BlockedRequests)
	metric("security_invalid_ip_total", "counter", "Malformed forwarded client addresses", securityMetrics.InvalidIPAttempts)
	metric("uptime_seconds", "gauge", "Seconds since start", int64(time.Since(s.started).Seconds()))
}
