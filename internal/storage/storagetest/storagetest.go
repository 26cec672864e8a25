// Package storagetest holds the behaviour every storage.Store backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butce/internal/core"
	"butce/internal/storage"
)

// Run exercises s. It must be empty.
func Run(t *testing.T, s storage.Store) {
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, s) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, s) })
	t.Run("Wallets", func(t *testing.T) { testWallets(t, s) })
	t.Run("FixedExpenses", func(t *testing.T) { testFixedExpenses(t, s) })
	t.Run("Reports", func(t *testing.T) { testReports(t, s) })
	t.Run("Counter", func(t *testing.T) { testCounter(t, s) })
}

func newTx(userID uuid.UUID, kind core.TransactionType, amount string, date core.Date) core.Transaction {
	return core.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Type:        kind,
		Category:    "Beslenme",
		Description: "market",
		Date:        date,
		CreatedAt:   time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()

	in := newTx(user, core.Income, "3800.50", core.NewDate(2025, 12, 1))
	out := newTx(user, core.Expense, "120.25", core.NewDate(2025, 12, 5))
	prev := newTx(user, core.Expense, "10", core.NewDate(2025, 11, 30))
	foreign := newTx(other, core.Expense, "99", core.NewDate(2025, 12, 5))
	for _, tx := range []core.Transaction{in, out, prev, foreign} {
		require.NoError(t, s.CreateTransaction(ctx, tx))
	}

	december := core.MonthRangeUTC("2025-12", time.Now())
	got, err := s.MonthTransactions(ctx, user, december)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, out.ID, got[0].ID)
	assert.Equal(t, in.ID, got[1].ID)
	assert.True(t, in.Amount.Equal(got[1].Amount), "amount %s", got[1].Amount)
	assert.Equal(t, core.Income, got[1].Type)
	assert.Equal(t, "2025-12-01", got[1].Date.String())
	assert.Equal(t, "market", got[1].Description)

	_, err = s.DeleteTransaction(ctx, other, out.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	deleted, err := s.DeleteTransaction(ctx, user, out.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-05", deleted.Date.String())
	assert.Equal(t, core.Expense, deleted.Type)

	_, err = s.DeleteTransaction(ctx, user, out.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err = s.MonthTransactions(ctx, user, december)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testPagination(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()

	sameDay := core.NewDate(2026, 1, 10)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateTransaction(ctx, newTx(user, core.Expense, "5", sameDay)))
	}
	older := newTx(user, core.Expense, "5", core.NewDate(2026, 1, 2))
	require.NoError(t, s.CreateTransaction(ctx, older))

	all, err := s.ListTransactions(ctx, storage.TransactionQuery{UserID: user, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, older.ID, all[3].ID)
	for i := 1; i < 3; i++ {
		assert.Greater(t, all[i-1].ID.String(), all[i].ID.String())
	}

	first, err := s.ListTransactions(ctx, storage.TransactionQuery{UserID: user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	last := first[1]
	rest, err := s.ListTransactions(ctx, storage.TransactionQuery{
		UserID: user,
		After:  &storage.Keyset{Date: last.Date.Time, ID: last.ID},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, all[2].ID, rest[0].ID)
	assert.Equal(t, older.ID, rest[1].ID)

	january := core.MonthRangeUTC("2026-01", time.Now())
	february := january.Next()
	none, err := s.ListTransactions(ctx, storage.TransactionQuery{UserID: user, Period: &february, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func testWallets(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()

	empty, err := s.ListWallets(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, w := range []core.Wallet{
		{ID: uuid.New(), UserID: user, Name: "Nakit", Balance: decimal.RequireFromString("1000")},
		{ID: uuid.New(), UserID: user, Name: "Banka", Balance: decimal.RequireFromString("4000.75")},
		{ID: uuid.New(), UserID: uuid.New(), Name: "Other", Balance: decimal.RequireFromString("1")},
	} {
		require.NoError(t, s.CreateWallet(ctx, w))
	}

	wallets, err := s.ListWallets(ctx, user)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.InDelta(t, 5000.75, storage.TotalBalance(wallets), 1e-9)
}

func testFixedExpenses(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	rent := core.FixedExpense{
		ID:        uuid.New(),
		UserID:    user,
		Name:      "Kira",
		Amount:    decimal.RequireFromString("1500"),
		Category:  "Kira/Fatura",
		Frequency: core.Monthly,
		StartDate: core.NewDate(2025, 1, 5),
	}
	require.NoError(t, s.CreateFixedExpense(ctx, rent))

	december := core.MonthRangeUTC("2025-12", time.Now())
	list, err := s.ListFixedExpenses(ctx, user, december)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Paid)
	assert.Equal(t, core.Monthly, list[0].Frequency)
	assert.Equal(t, "2025-01-05", list[0].StartDate.String())

	require.NoError(t, s.MarkFixedExpensePaid(ctx, user, rent.ID, december.Label))
	require.NoError(t, s.MarkFixedExpensePaid(ctx, user, rent.ID, december.Label))
	assert.ErrorIs(t, s.MarkFixedExpensePaid(ctx, uuid.New(), rent.ID, december.Label), core.ErrNotFound)

	list, err = s.ListFixedExpenses(ctx, user, december)
	require.NoError(t, err)
	assert.True(t, list[0].Paid)

	list, err = s.ListFixedExpenses(ctx, user, december.Next())
	require.NoError(t, err)
	assert.False(t, list[0].Paid)
}

func testReports(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()

	_, err := s.GetMonthlyReport(ctx, user, "2025-12")
	assert.ErrorIs(t, err, core.ErrNotFound)

	r := core.MonthlyReport{UserID: user, Month: "2025-12", IncomeTotal: 100, ExpenseTotal: 40, NetTotal: 60,
		UpdatedAt: time.Date(2025, 12, 21, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, s.UpsertMonthlyReport(ctx, r))
	r.ExpenseTotal, r.NetTotal = 50, 50
	require.NoError(t, s.UpsertMonthlyReport(ctx, r))

	got, err := s.GetMonthlyReport(ctx, user, "2025-12")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.ExpenseTotal)
	assert.Equal(t, 50.0, got.NetTotal)
	assert.True(t, r.UpdatedAt.Equal(got.UpdatedAt))
}

func testCounter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	key := "butce:rl|test|" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := s.Increment(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := s.Increment(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Increment(ctx, key+"|other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
