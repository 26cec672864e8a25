// Package storage declares the persistence ports used by the services. The
// memory, sqlite and postgres subpackages implement them.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"butce/internal/core"
	"butce/internal/middleware/ratelimit"
)

// Keyset is the sort key of the last row a client has seen. Listings are
// ordered by (date DESC, id DESC).
type Keyset struct {
	Date time.Time
	ID   uuid.UUID
}

// TransactionQuery selects one page of a user's transactions. A nil Period
// lists every month; a nil After starts from the newest row. Limit is the
// number of rows to fetch, callers ask for one more than they show.
type TransactionQuery struct {
	UserID uuid.UUID
	Period *core.MonthRange
	After  *Keyset
	Limit  int
}

// Ports for outbound adapters.
type (
	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		// DeleteTransaction returns the removed row, or core.ErrNotFound when
		// id does not belong to userID.
		DeleteTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error)
		ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, error)
		// MonthTransactions returns every transaction of userID dated inside period.
		MonthTransactions(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.Transaction, error)
	}

	WalletStore interface {
		ListWallets(ctx context.Context, userID uuid.UUID) ([]core.Wallet, error)
		CreateWallet(ctx context.Context, w core.Wallet) error
	}

	FixedExpenseStore interface {
		// ListFixedExpenses returns the user's fixed expenses with Paid
		// resolved for the month of period.
		ListFixedExpenses(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.FixedExpense, error)
		CreateFixedExpense(ctx context.Context, fe core.FixedExpense) error
		// MarkFixedExpensePaid records a payment for month ("YYYY-MM"). Marking
		// twice is not an error.
		MarkFixedExpensePaid(ctx context.Context, userID, id uuid.UUID, month string) error
	}

	ReportStore interface {
		UpsertMonthlyReport(ctx context.Context, r core.MonthlyReport) error
		// GetMonthlyReport returns core.ErrNotFound when no snapshot exists.
		GetMonthlyReport(ctx context.Context, userID uuid.UUID, month string) (core.MonthlyReport, error)
	}

	// Store is a complete backend, including the rate limit counter.
	Store interface {
		TransactionStore
		WalletStore
		FixedExpenseStore
		ReportStore
		ratelimit.Counter

		Ping(ctx context.Context) error
		Close() error
	}
)

// TotalBalance sums wallet balances.
func TotalBalance(wallets []core.Wallet) float64 {
	total := 0.0
	for _, w := range wallets {
		total += core.AmountFloat(w.Balance)
	}
	return total
}

// Before reports whether a row keyed (date, id) sorts after k in a
// (date DESC, id DESC) listing, that is whether it belongs on the next page.
func (k Keyset) Before(date time.Time, id uuid.UUID) bool {
	kd := k.Date.UTC().Truncate(24 * time.Hour)
	d := date.UTC().Truncate(24 * time.Hour)
	if d.Before(kd) {
		return true
	}
	return d.Equal(kd) && id.String() < k.ID.String()
}
