package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/storage"
)

type WalletInput struct {
	Name    string
	Balance decimal.Decimal
}

type FixedExpenseInput struct {
	Name      string
	Amount    decimal.Decimal
	Category  string
	Frequency core.Frequency
	StartDate core.Date
}

// BudgetService manages wallets and fixed expenses. Every write invalidates
// the user's cached dashboards.
type BudgetService struct {
	wallets     storage.WalletStore
	fixed       storage.FixedExpenseStore
	invalidator Invalidator
	logger      *log.Logger
}

func NewBudgetService(wallets storage.WalletStore, fixed storage.FixedExpenseStore, invalidator Invalidator, logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.Discard()
	}
	return &BudgetService{
		wallets:     wallets,
		fixed:       fixed,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentTransaction),
	}
}

func (s *BudgetService) ListWallets(ctx context.Context, userID uuid.UUID) ([]core.Wallet, error) {
	wallets, err := s.wallets.ListWallets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func (s *BudgetService) CreateWallet(ctx context.Context, userID uuid.UUID, in WalletInput) (core.Wallet, error) {
	w := core.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    strings.TrimSpace(in.Name),
		Balance: in.Balance.Round(2),
	}
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	if err := s.wallets.CreateWallet(ctx, w); err != nil {
		return core.Wallet{}, fmt.Errorf("save wallet: %w", err)
	}

	s.logger.InfoContext(ctx, "Wallet created", log.FieldUserID, userID.String(), log.FieldOperation, log.OpCreate)
	s.invalidate(userID)
	return w, nil
}

// ListFixedExpenses returns the fixed expenses with Paid resolved for period.
func (s *BudgetService) ListFixedExpenses(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.FixedExpense, error) {
	list, err := s.fixed.ListFixedExpenses(ctx, userID, period)
	if err != nil {
		return nil, fmt.Errorf("list fixed expenses: %w", err)
	}
	return list, nil
}

func (s *BudgetService) CreateFixedExpense(ctx context.Context, userID uuid.UUID, in FixedExpenseInput) (core.FixedExpense, error) {
	fe := core.FixedExpense{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Amount:    in.Amount.Round(2),
		Category:  strings.TrimSpace(in.Category),
		Frequency: in.Frequency,
		StartDate: in.StartDate,
	}
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	if err := s.fixed.CreateFixedExpense(ctx, fe); err != nil {
		return core.FixedExpense{}, fmt.Errorf("save fixed expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Fixed expense created",
		log.FieldUserID, userID.String(),
		log.FieldCategory, fe.Category,
		log.FieldOperation, log.OpCreate)
	s.invalidate(userID)
	return fe, nil
}

// MarkFixedExpensePaid records the payment of id for period's month.
func (s *BudgetService) MarkFixedExpensePaid(ctx context.Context, userID, id uuid.UUID, period core.MonthRange) error {
	if err := s.fixed.MarkFixedExpensePaid(ctx, userID, id, period.Label); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Fixed expense marked paid", log.NewFields().
		WithOperation(log.OpUpdate).
		WithUser(userID.String(), period.Label).
		ToSlice()...)
	s.invalidate(userID)
	return nil
}

func (s *BudgetService) invalidate(userID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
}
