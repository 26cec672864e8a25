package http

import (
	"net/http"

	"butce/internal/log"
	"butce/internal/services"
)

// handleListTransactions returns one page of the user's transactions, newest
// first. An unreadable cursor restarts from the first page.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := s.transactions.ListTransactions(r.Context(), userID, services.ListQuery{
		Month:  q.Get("month"),
		Cursor: q.Get("cursor"),
		Limit:  parseLimit(q),
	})
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}

	NewJSONResponse().Body(page).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}

	req := body.TransactionRequest()
	if issues := Validate(req); len(issues) > 0 {
		ValidationError(r, "Invalid transaction", issues).Write(w)
		return
	}
	in, err := req.ToInput(s.now())
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}

	t, err := s.transactions.CreateTransaction(r.Context(), userID, in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		// Not a uuid, so it cannot be one of the user's transactions.
		NotFoundError(r, "Transaction not found").Write(w)
		return
	}

	if err := s.transactions.DeleteTransaction(r.Context(), userID, id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
