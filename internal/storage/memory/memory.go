package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"butce/internal/core"
	"butce/internal/middleware/ratelimit"
	"butce/internal/storage"
)

type paymentKey struct {
	fixedExpenseID uuid.UUID
	month          string
}

type reportKey struct {
	userID uuid.UUID
	month  string
}

// Store keeps everything in process memory. It is used by the memory backend
// and by service tests.
type Store struct {
	*ratelimit.MemoryCounter

	mu       sync.Mutex
	txs      []core.Transaction
	wallets  []core.Wallet
	fixed    []core.FixedExpense
	payments map[paymentKey]time.Time
	reports  map[reportKey]core.MonthlyReport
	now      func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		MemoryCounter: ratelimit.NewMemoryCounter(time.Minute),
		payments:      make(map[paymentKey]time.Time),
		reports:       make(map[reportKey]core.MonthlyReport),
		now:           time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	s.MemoryCounter.Stop()
	return nil
}

// CreateTransaction stores t after validating it.
func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.txs = append(s.txs, t)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id uuid.UUID) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.txs {
		if t.ID == id && t.UserID == userID {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return t, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, q storage.TransactionQuery) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID != q.UserID {
			continue
		}
		if q.Period != nil && !q.Period.Contains(t.Date.Time) {
			continue
		}
		if q.After != nil && !q.After.Before(t.Date.Time, t.ID) {
			continue
		}
		out = append(out, t)
	}
	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) MonthTransactions(_ context.Context, userID uuid.UUID, period core.MonthRange) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID && period.Contains(t.Date.Time) {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListWallets(_ context.Context, userID uuid.UUID) ([]core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Wallet, 0)
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) CreateWallet(_ context.Context, w core.Wallet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now().UTC()
	}
	s.wallets = append(s.wallets, w)
	return nil
}

func (s *Store) ListFixedExpenses(_ context.Context, userID uuid.UUID, period core.MonthRange) ([]core.FixedExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.FixedExpense, 0)
	for _, fe := range s.fixed {
		if fe.UserID != userID {
			continue
		}
		_, fe.Paid = s.payments[paymentKey{fe.ID, period.Label}]
		out = append(out, fe)
	}
	return out, nil
}

func (s *Store) CreateFixedExpense(_ context.Context, fe core.FixedExpense) error {
	if err := fe.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fe.Paid = false
	s.fixed = append(s.fixed, fe)
	return nil
}

func (s *Store) MarkFixedExpensePaid(_ context.Context, userID, id uuid.UUID, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fe := range s.fixed {
		if fe.ID == id && fe.UserID == userID {
			key := paymentKey{id, month}
			if _, ok := s.payments[key]; !ok {
				s.payments[key] = s.now().UTC()
			}
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) UpsertMonthlyReport(_ context.Context, r core.MonthlyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now().UTC()
	}
	s.reports[reportKey{r.UserID, r.Month}] = r
	return nil
}

func (s *Store) GetMonthlyReport(_ context.Context, userID uuid.UUID, month string) (core.MonthlyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportKey{userID, month}]
	if !ok {
		return core.MonthlyReport{}, core.ErrNotFound
	}
	return r, nil
}

func sortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].ID.String() > txs[j].ID.String()
	})
}
