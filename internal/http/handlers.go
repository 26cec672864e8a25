package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"butce/internal/auth"
	"butce/internal/core"
	"butce/internal/log"
)

// validationErrors are domain errors caused by client input, with the field
// they are reported under.
var validationErrors = []struct {
	err   error
	field string
}{
	{core.ErrInvalidAmount, "amount"},
	{core.ErrInvalidType, "type"},
	{core.ErrInvalidFrequency, "frequency"},
	{core.ErrInvalidStartDate, "startDate"},
	{core.ErrInvalidDate, "date"},
	{core.ErrInvalidDay, "date"},
	{core.ErrInvalidMonth, "month"},
	{core.ErrEmptyCategory, "category"},
	{core.ErrEmptyName, "name"},
	{core.ErrNameTooLong, "name"},
	{core.ErrDescriptionTooLong, "description"},
}

func validationIssues(err error) (Issues, bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return Issues{v.field: {err.Error()}}, true
		}
	}
	return nil, false
}

// fail maps err onto the error envelope. Only unexpected errors are logged at
// error level.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	if issues, ok := validationIssues(err); ok {
		ValidationError(r, "Invalid input", issues).Write(w)
		return
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(r, "Resource not found").Write(w)
	case errors.Is(err, context.DeadlineExceeded):
		logger.WarnContext(r.Context(), "Request timed out", log.FieldOperation, op, log.FieldPath, r.URL.Path)
		ErrorResponse(r, http.StatusServiceUnavailable, CodeUnavailable, "Request timed out").Write(w)
	default:
		logger.ErrorContext(r.Context(), "Request failed", log.NewFields().
			WithOperation(op).
			WithError(err).
			ToSlice()...)
		InternalServerError(r).Write(w)
	}
}

// userID returns the authenticated user. Routes behind auth.Middleware always
// have one; the check guards against miswiring.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		UnauthorizedError(r).Write(w)
	}
	return id, ok
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// parseBody reads and parses the request body, answering 400 itself on failure.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			ErrorResponse(r, http.StatusRequestEntityTooLarge, CodeBadRequest, "Request body too large").Write(w)
			return nil, false
		}
		BadRequestError(r, "Malformed request body").Write(w)
		return nil, false
	}
	return p, true
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.store == nil {
		checks["storage"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		checks["storage"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	uptime := time.Since(s.started)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP rate_limit_decisions_total Rate limit decisions by outcome\n")
	fmt.Fprintf(w, "# TYPE rate_limit_decisions_total counter\n")
	fmt.Fprintf(w, "rate_limit_decisions_total{outcome=\"allowed\"} %d\n", rateLimitMetrics.Allowed)
	fmt.Fprintf(w, "rate_limit_decisions_total{outcome=\"denied\"} %d\n", rateLimitMetrics.Denied)
	fmt.Fprintf(w, "rate_limit_decisions_total{outcome=\"counter_failure\"} %d\n\n", rateLimitMetrics.Failures)

	if c := s.dashboardCache(); c != nil {
		if sized, ok := c.(interface{ Size() int }); ok {
			fmt.Fprintf(w, "# HELP cache_entries Current dashboard cache entries\n")
			fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
			fmt.Fprintf(w, "cache_entries{type=\"dashboard\"} %d\n\n", sized.Size())
		}
	}

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", uptime.Seconds())
}

func (s *Server) dashboardCache() any {
	if s.reports == nil {
		return nil
	}
	if c := s.reports.Cache(); c != nil {
		return c
	}
	return nil
}
