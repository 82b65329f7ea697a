package http

import (
	"net/http"
	"strconv"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/report"
)

// monthYearParams reads the optional month and year query parameters,
// defaulting to the current calendar month. An explicit parameter always
// takes precedence over the clock.
func (s *Server) monthYearParams(r *http.Request) (month, year int, err error) {
	now := s.now()
	month = int(now.Month())
	year = now.Year()

	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, report.ErrInvalidMonth
		}
		month = m
	}
	if v := q.Get("year"); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, report.ErrInvalidYear
		}
		year = y
	}
	return month, year, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	month, year, err := s.monthYearParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	key := s.dashboardCacheKey(owner, month, year)
	if view, ok := s.dashCache.Get(key); ok {
		s.logger.DebugContext(r.Context(), "Dashboard cache hit",
			log.FieldUserID, owner, log.FieldYear, year, log.FieldMonth, month)
		respondJSON(w, http.StatusOK, view)
		return
	}

	view, err := s.reports.Dashboard(r.Context(), owner, month, year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.dashCache.Set(key, view)
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handlePeriodReport(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())
	q := r.URL.Query()

	startStr, endStr := q.Get("startDate"), q.Get("endDate")
	if startStr == "" || endStr == "" {
		s.respondError(w, r, report.ErrMissingDates)
		return
	}
	from, err := core.ParseDate(startStr)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	to, err := core.ParseDate(endStr)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	kind := core.Kind(q.Get("type"))

	buckets, err := s.reports.ByPeriod(r.Context(), owner, from, to, kind)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	month, year, err := s.monthYearParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	stats, err := s.reports.ByCategory(r.Context(), owner, month, year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
