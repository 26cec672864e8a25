package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"butce/internal/cache"
	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/storage"
)

// Dashboard is everything the monthly overview shows.
type Dashboard struct {
	Month     core.MonthRange       `json:"month"`
	Summary   core.Summary          `json:"summary"`
	Balance   core.SmartBalance     `json:"smartBalance"`
	InDebt    bool                  `json:"inDebt"`
	Breakdown core.ExpenseBreakdown `json:"breakdown"`
	Gradient  string                `json:"gradient"`
	Message   string                `json:"message"`
}

// dashboardInputs are the stored facts a dashboard is computed from. They are
// cached rather than the dashboard itself because the smart balance depends on
// the current day.
type dashboardInputs struct {
	transactions []core.Transaction
	totalMoney   float64
	fixed        []core.FixedExpense
}

// ReportService builds dashboards and monthly report snapshots.
type ReportService struct {
	transactions storage.TransactionStore
	wallets      storage.WalletStore
	fixed        storage.FixedExpenseStore
	reports      storage.ReportStore
	cache        cache.Cache[dashboardInputs]
	logger       *log.Logger

	// generations counts invalidations per user. A load only fills the
	// cache when no invalidation happened while it was reading.
	genMu       sync.Mutex
	generations map[uuid.UUID]uint64
	now          func() time.Time
}

// NewReportService wires a report service. A zero cacheSize disables caching.
func NewReportService(store storage.Store, cacheSize int, cacheTTL time.Duration, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &ReportService{
		transactions: store,
		wallets:      store,
		fixed:        store,
		reports:      store,
		logger:       logger.WithComponent(log.ComponentReport),
		now:          time.Now,
		generations:  make(map[uuid.UUID]uint64),
	}
	if cacheSize > 0 {
		s.cache = cache.NewLRUCache[dashboardInputs](cacheSize, cacheTTL)
	}
	return s
}

// Cache exposes the dashboard cache for registration with a cache.Manager.
func (s *ReportService) Cache() cache.Cleaner {
	if c, ok := s.cache.(cache.Cleaner); ok {
		return c
	}
	return nil
}

func cacheKey(userID uuid.UUID, month string) string {
	return userID.String() + "|" + month
}

// Invalidate drops every cached month of userID.
func (s *ReportService) Invalidate(userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[userID]++
	s.cache.DeletePrefix(userID.String() + "|")
}

func (s *ReportService) generation(userID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// storeInputs caches in unless userID was invalidated since gen was read.
func (s *ReportService) storeInputs(userID uuid.UUID, gen uint64, key string, in dashboardInputs) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.cache.Set(key, in)
}

// Dashboard computes the overview of period for userID as seen at now.
func (s *ReportService) Dashboard(ctx context.Context, userID uuid.UUID, period core.MonthRange, now time.Time) (Dashboard, error) {
	in, err := s.loadInputs(ctx, userID, period)
	if err != nil {
		return Dashboard{}, err
	}

	summary := core.Summarize(in.transactions)
	planned, paid := core.FixedExpenseTotals(in.fixed, period)
	balance := core.CalculateSmartBalance(core.SmartBalanceInput{
		TotalMoney:           in.totalMoney,
		ExpenseTotal:         summary.ExpenseTotal,
		PlannedFixedExpenses: planned,
		FixedExpensesPaid:    paid,
		Period:               period,
		Now:                  now,
	})
	breakdown := core.Breakdown(core.ExpensesByCategory(in.transactions))

	return Dashboard{
		Month:     period,
		Summary:   summary,
		Balance:   balance,
		InDebt:    balance.InDebt(),
		Breakdown: breakdown,
		Gradient:  core.ConicGradient(breakdown.Slices),
		Message:   core.RealityCheckMessage(breakdown.Slices),
	}, nil
}

// loadInputs reads the month's transactions, the wallet total and the fixed
// expenses concurrently.
func (s *ReportService) loadInputs(ctx context.Context, userID uuid.UUID, period core.MonthRange) (dashboardInputs, error) {
	key := cacheKey(userID, period.Label)
	var gen uint64
	if s.cache != nil {
		if in, ok := s.cache.Get(key); ok {
			return in, nil
		}
		gen = s.generation(userID)
	}

	var in dashboardInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.transactions.MonthTransactions(gctx, userID, period)
		if err != nil {
			return fmt.Errorf("month transactions: %w", err)
		}
		in.transactions = txs
		return nil
	})
	g.Go(func() error {
		wallets, err := s.wallets.ListWallets(gctx, userID)
		if err != nil {
			return fmt.Errorf("wallets: %w", err)
		}
		in.totalMoney = storage.TotalBalance(wallets)
		return nil
	})
	g.Go(func() error {
		fixed, err := s.fixed.ListFixedExpenses(gctx, userID, period)
		if err != nil {
			return fmt.Errorf("fixed expenses: %w", err)
		}
		in.fixed = fixed
		return nil
	})
	if err := g.Wait(); err != nil {
		return dashboardInputs{}, err
	}

	if s.cache != nil {
		s.storeInputs(userID, gen, key, in)
	}
	return in, nil
}

// RefreshMonthlyReport recomputes and stores the report snapshot of period.
func (s *ReportService) RefreshMonthlyReport(ctx context.Context, userID uuid.UUID, period core.MonthRange) (core.MonthlyReport, error) {
	txs, err := s.transactions.MonthTransactions(ctx, userID, period)
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("month transactions: %w", err)
	}

	report := core.Summarize(txs).Report(period)
	report.UserID = userID
	report.UpdatedAt = s.now().UTC()
	if err := s.reports.UpsertMonthlyReport(ctx, report); err != nil {
		return core.MonthlyReport{}, fmt.Errorf("store monthly report: %w", err)
	}

	s.logger.InfoContext(ctx, "Monthly report refreshed", log.NewFields().
		WithOperation(log.OpRefresh).
		WithUser(userID.String(), period.Label).
		ToSlice()...)
	return report, nil
}

// MonthlyReport returns the stored snapshot for a strict "YYYY-MM" label.
func (s *ReportService) MonthlyReport(ctx context.Context, userID uuid.UUID, month string) (core.MonthlyReport, error) {
	period, err := core.ParseMonth(month)
	if err != nil {
		return core.MonthlyReport{}, err
	}
	return s.reports.GetMonthlyReport(ctx, userID, period.Label)
}
