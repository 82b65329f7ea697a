package http

import (
	"net/http"

	"fintrack/internal/core"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.Kind(r.URL.Query().Get("type"))
	if kind != "" {
		if err := kind.Validate(); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	categories, err := s.store.ListCategories(r.Context(), kind)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, categories)
}
