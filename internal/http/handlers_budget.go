package http

import (
	"net/http"

	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/services"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	wallets, err := s.budget.ListWallets(r.Context(), userID)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}

	NewJSONResponse().Body(map[string]any{"items": wallets}).Write(w)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}

	req := body.WalletRequest()
	if issues := Validate(req); len(issues) > 0 {
		ValidationError(r, "Invalid wallet", issues).Write(w)
		return
	}
	balance, err := parseSignedDecimal(req.Balance)
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}

	wallet, err := s.budget.CreateWallet(r.Context(), userID, services.WalletInput{
		Name:    req.Name,
		Balance: balance,
	})
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(wallet).Write(w)
}

// handleListFixedExpenses lists fixed expenses with their paid state for
// ?month=, defaulting to the current month.
func (s *Server) handleListFixedExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	period := core.MonthRangeUTC(r.URL.Query().Get("month"), s.now())
	list, err := s.budget.ListFixedExpenses(r.Context(), userID, period)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}

	NewJSONResponse().Body(map[string]any{
		"month": period.Label,
		"items": list,
	}).Write(w)
}

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}

	req := body.FixedExpenseRequest()
	if issues := Validate(req); len(issues) > 0 {
		ValidationError(r, "Invalid fixed expense", issues).Write(w)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}

	fe, err := s.budget.CreateFixedExpense(r.Context(), userID, services.FixedExpenseInput{
		Name:      req.Name,
		Amount:    amount,
		Category:  req.Category,
		Frequency: core.Frequency(req.Frequency),
		StartDate: start,
	})
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(fe).Write(w)
}

// handlePayFixedExpense marks a fixed expense paid for ?month=. Paying twice
// is not an error.
func (s *Server) handlePayFixedExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		NotFoundError(r, "Fixed expense not found").Write(w)
		return
	}

	period := core.MonthRangeUTC(r.URL.Query().Get("month"), s.now())
	if err := s.budget.MarkFixedExpensePaid(r.Context(), userID, id, period); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	NewJSONResponse().Body(map[string]any{
		"id":    id,
		"month": period.Label,
		"paid":  true,
	}).Write(w)
}
