package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/storage"
)

type createTransactionRequest struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Kind        core.Kind  `json:"kind"`
	Category    string     `json:"category"`
	Date        core.Date  `json:"date"`
}

type updateTransactionRequest struct {
	Description *string     `json:"description"`
	Amount      *core.Money `json:"amount"`
	Kind        *core.Kind  `json:"kind"`
	Category    *string     `json:"category"`
	Date        *core.Date  `json:"date"`
}

// transactionID parses the {id} path parameter. A non-numeric id cannot name
// any row, so it reports not found rather than a validation failure.
func transactionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	created, err := s.store.CreateTransaction(r.Context(), owner, core.Transaction{
		Description: req.Description,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Category:    req.Category,
		Date:        req.Date,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.bumpOwnerVersion(owner)
	s.publishEvent(r.Context(), created.ID, owner, events.ActionCreated)

	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())
	q := r.URL.Query()

	var filter storage.TransactionFilter

	if v := q.Get("kind"); v != "" {
		kind := core.Kind(v)
		if err := kind.Validate(); err != nil {
			s.respondError(w, r, err)
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("startDate"); v != "" {
		from, err := core.ParseDate(v)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		filter.DateFrom = from
	}
	if v := q.Get("endDate"); v != "" {
		to, err := core.ParseDate(v)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		filter.DateTo = to
	}
	filter.Category = q.Get("category")

	transactions, err := s.store.ListTransactions(r.Context(), owner, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, transactions)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	id, err := transactionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	transaction, err := s.store.GetTransaction(r.Context(), owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, transaction)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	id, err := transactionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	updated, err := s.store.UpdateTransaction(r.Context(), owner, id, core.TransactionPatch{
		Description: req.Description,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Category:    req.Category,
		Date:        req.Date,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.bumpOwnerVersion(owner)
	s.publishEvent(r.Context(), id, owner, events.ActionUpdated)

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerFromContext(r.Context())

	id, err := transactionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.store.DeleteTransaction(r.Context(), owner, id); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.bumpOwnerVersion(owner)
	s.publishEvent(r.Context(), id, owner, events.ActionDeleted)

	respondJSON(w, http.StatusOK, messageResponse{Message: "transaction deleted"})
}
