package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butce/internal/core"
	"butce/internal/storage/memory"
)

func seedDashboard(t *testing.T, store *memory.Store, user uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateWallet(ctx, core.Wallet{ID: uuid.New(), UserID: user, Name: "Banka", Balance: decimal.NewFromInt(5000)}))
	require.NoError(t, store.CreateFixedExpense(ctx, core.FixedExpense{
		ID: uuid.New(), UserID: user, Name: "Kira", Amount: decimal.NewFromInt(1200),
		Category: "Kira/Fatura", Frequency: core.Monthly, StartDate: core.NewDate(2025, 1, 1),
	}))
	for _, tx := range []core.Transaction{
		{ID: uuid.New(), UserID: user, Amount: decimal.NewFromInt(2280), Type: core.Expense, Category: "Sosyal/Keyif", Date: core.NewDate(2025, 12, 2)},
		{ID: uuid.New(), UserID: user, Amount: decimal.NewFromInt(1520), Type: core.Expense, Category: "Beslenme", Date: core.NewDate(2025, 12, 3)},
		{ID: uuid.New(), UserID: user, Amount: decimal.NewFromInt(900), Type: core.Income, Category: "Maaş", Date: core.NewDate(2025, 12, 4)},
	} {
		require.NoError(t, store.CreateTransaction(ctx, tx))
	}
}

func TestReportService_Dashboard(t *testing.T) {
	store := memory.New()
	defer store.Close()
	user := uuid.New()
	seedDashboard(t, store, user)

	svc := NewReportService(store, 10, time.Minute, nil)
	december := core.MonthRangeUTC("2025-12", fixedNow)

	d, err := svc.Dashboard(context.Background(), user, december, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 900.0, d.Summary.IncomeTotal)
	assert.Equal(t, 3800.0, d.Summary.ExpenseTotal)
	assert.Equal(t, 1200.0, d.Balance.CurrentBalance)
	assert.Equal(t, 1200.0, d.Balance.RemainingFixedExpenses)
	assert.Equal(t, 11, d.Balance.RemainingDaysInMonth)
	assert.Equal(t, 0.0, d.Balance.TodaySpendableLimit)
	assert.False(t, d.InDebt)

	require.Len(t, d.Breakdown.Slices, 2)
	assert.Equal(t, "Sosyal/Keyif", d.Breakdown.Slices[0].Category)
	assert.Contains(t, d.Message, "%60")
	assert.Contains(t, d.Gradient, "conic-gradient(")
}

func TestReportService_CacheInvalidation(t *testing.T) {
	store := memory.New()
	defer store.Close()
	user := uuid.New()
	seedDashboard(t, store, user)

	svc := NewReportService(store, 10, time.Minute, nil)
	december := core.MonthRangeUTC("2025-12", fixedNow)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, user, december, fixedNow)
	require.NoError(t, err)

	require.NoError(t, store.CreateTransaction(ctx, core.Transaction{
		ID: uuid.New(), UserID: user, Amount: decimal.NewFromInt(100), Type: core.Expense,
		Category: "Ulaşım", Date: core.NewDate(2025, 12, 5),
	}))

	cached, err := svc.Dashboard(ctx, user, december, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 3800.0, cached.Summary.ExpenseTotal)

	svc.Invalidate(user)
	fresh, err := svc.Dashboard(ctx, user, december, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 3900.0, fresh.Summary.ExpenseTotal)
}

// slowMonthStore reads the month once, then holds the result until released.
type slowMonthStore struct {
	*memory.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *slowMonthStore) MonthTransactions(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.Transaction, error) {
	txs, err := s.Store.MonthTransactions(ctx, userID, period)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return txs, err
}

func TestReportService_InvalidateDuringLoad(t *testing.T) {
	store := &slowMonthStore{Store: memory.New(), read: make(chan struct{}), release: make(chan struct{})}
	defer store.Close()
	user := uuid.New()
	ctx := context.Background()

	reports := NewReportService(store, 10, time.Minute, nil)
	transactions := NewTransactionService(store, nil, reports, nil)
	december := core.MonthRangeUTC("2025-12", fixedNow)

	loaded := make(chan error, 1)
	go func() {
		_, err := reports.Dashboard(ctx, user, december, fixedNow)
		loaded <- err
	}()

	<-store.read
	_, err := transactions.CreateTransaction(ctx, user, expenseInput("100", "Ulaşım", core.NewDate(2025, 12, 5)))
	require.NoError(t, err)
	close(store.release)
	require.NoError(t, <-loaded)

	d, err := reports.Dashboard(ctx, user, december, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 100.0, d.Summary.ExpenseTotal)
}

func TestReportService_RemainingDaysFollowPeriod(t *testing.T) {
	store := memory.New()
	defer store.Close()
	svc := NewReportService(store, 0, 0, nil)

	november := core.MonthRangeUTC("2025-11", fixedNow)
	d, err := svc.Dashboard(context.Background(), uuid.New(), november, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Balance.RemainingDaysInMonth)
	assert.Empty(t, d.Breakdown.Slices)
}

func TestReportService_RefreshAndRead(t *testing.T) {
	store := memory.New()
	defer store.Close()
	user := uuid.New()
	seedDashboard(t, store, user)

	svc := NewReportService(store, 0, 0, nil)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	_, err := svc.MonthlyReport(ctx, user, "2025-12")
	assert.ErrorIs(t, err, core.ErrNotFound)

	r, err := svc.RefreshMonthlyReport(ctx, user, core.MonthRangeUTC("2025-12", fixedNow))
	require.NoError(t, err)
	assert.Equal(t, -2900.0, r.NetTotal)

	got, err := svc.MonthlyReport(ctx, user, "2025-12")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = svc.MonthlyReport(ctx, user, "2025-13")
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}
