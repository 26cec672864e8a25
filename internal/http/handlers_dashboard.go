package http

import (
	"net/http"

	"butce/internal/core"
	"butce/internal/log"
)

// handleDashboard renders the monthly overview. A missing or malformed month
// falls back to the current one.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	now := s.now()
	period := core.MonthRangeUTC(r.URL.Query().Get("month"), now)

	dashboard, err := s.reports.Dashboard(r.Context(), userID, period, now)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}

	NewJSONResponse().Body(dashboard).Write(w)
}

// handleMonthlyReport returns the stored snapshot of a month. Unlike the
// dashboard, the month must be well formed.
func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	req := MonthRequest{Month: r.PathValue("month")}
	if issues := Validate(req); len(issues) > 0 {
		ValidationError(r, "Invalid month", issues).Write(w)
		return
	}

	report, err := s.reports.MonthlyReport(r.Context(), userID, req.Month)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}

	NewJSONResponse().Body(report).Write(w)
}
