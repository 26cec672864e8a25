package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/middleware/ratelimit"
	"butce/internal/storage"
)

// SQLSTATE codes meaning the counter function or its table is missing.
const (
	undefinedFunction = "42883"
	undefinedTable    = "42P01"
)

type Storage struct {
	db     *pgxpool.Pool
	logger *log.Logger
}

var _ storage.Store = (*Storage)(nil)

func NewStorage(db *pgxpool.Pool, logger *log.Logger) *Storage {
	if logger == nil {
		logger = log.Discard()
	}
	return &Storage{db: db, logger: logger.WithComponent(log.ComponentStorage)}
}

// Open migrates the database at databaseURL and connects a pool to it.
func Open(ctx context.Context, databaseURL string, logger *log.Logger) (*Storage, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStorage(pool, logger), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// === TransactionStore ===

func (s *Storage) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category, description, date, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.Amount.String(), string(t.Type), t.Category, t.Description, t.Date.Time, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *Storage) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error) {
	deleted, err := s.queryTransactions(ctx, `
		DELETE FROM transactions WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, amount::text, type, category, description, date, created_at
	`, id, userID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if len(deleted) == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return deleted[0], nil
}

func (s *Storage) ListTransactions(ctx context.Context, q storage.TransactionQuery) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{q.UserID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Period != nil {
		where = append(where, "date >= "+arg(q.Period.Start)+"::date", "date < "+arg(q.Period.End)+"::date")
	}
	if q.After != nil {
		d := arg(q.After.Date.UTC())
		where = append(where, fmt.Sprintf("(date, id) < (%s::date, %s::uuid)", d, arg(q.After.ID)))
	}
	query := `
		SELECT id, user_id, amount::text, type, category, description, date, created_at
		FROM transactions WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date DESC, id DESC`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	txs, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *Storage) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t      core.Transaction
			amount string
			kind   string
			date   time.Time
		)
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &kind, &t.Category, &t.Description, &date, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan transaction amount: %w", err)
		}
		t.Type = core.TransactionType(kind)
		t.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (s *Storage) MonthTransactions(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.Transaction, error) {
	return s.ListTransactions(ctx, storage.TransactionQuery{UserID: userID, Period: &period})
}

// === WalletStore ===

func (s *Storage) ListWallets(ctx context.Context, userID uuid.UUID) ([]core.Wallet, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, balance::text, created_at FROM wallets
		WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Wallet, 0)
	for rows.Next() {
		var (
			w       core.Wallet
			balance string
		)
		if err := rows.Scan(&w.ID, &w.Name, &balance, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		if w.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("scan wallet balance: %w", err)
		}
		w.UserID = userID
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return out, nil
}

func (s *Storage) CreateWallet(ctx context.Context, w core.Wallet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO wallets (id, user_id, name, balance, created_at) VALUES ($1, $2, $3, $4::numeric, $5)
	`, w.ID, w.UserID, strings.TrimSpace(w.Name), w.Balance.String(), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// === FixedExpenseStore ===

func (s *Storage) ListFixedExpenses(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.FixedExpense, error) {
	rows, err := s.db.Query(ctx, `
		SELECT f.id, f.name, f.amount::text, f.category, f.frequency, f.start_date, p.month IS NOT NULL
		FROM fixed_expenses f
		LEFT JOIN fixed_expense_payments p ON p.fixed_expense_id = f.id AND p.month = $2
		WHERE f.user_id = $1
		ORDER BY f.name, f.id
	`, userID, period.Label)
	if err != nil {
		return nil, fmt.Errorf("list fixed expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.FixedExpense, 0)
	for rows.Next() {
		var (
			fe        core.FixedExpense
			amount    string
			frequency string
			start     time.Time
		)
		if err := rows.Scan(&fe.ID, &fe.Name, &amount, &fe.Category, &frequency, &start, &fe.Paid); err != nil {
			return nil, fmt.Errorf("scan fixed expense: %w", err)
		}
		if fe.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan fixed expense amount: %w", err)
		}
		fe.UserID = userID
		fe.Frequency = core.Frequency(frequency)
		fe.StartDate = core.NewDate(start.Year(), int(start.Month()), start.Day())
		out = append(out, fe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixed expenses: %w", err)
	}
	return out, nil
}

func (s *Storage) CreateFixedExpense(ctx context.Context, fe core.FixedExpense) error {
	if err := fe.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fixed_expenses (id, user_id, name, amount, category, frequency, start_date)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
	`, fe.ID, fe.UserID, strings.TrimSpace(fe.Name), fe.Amount.String(), fe.Category, string(fe.Frequency), fe.StartDate.Time)
	if err != nil {
		return fmt.Errorf("create fixed expense: %w", err)
	}
	return nil
}

func (s *Storage) MarkFixedExpensePaid(ctx context.Context, userID, id uuid.UUID, month string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var owner uuid.UUID
	err = tx.QueryRow(ctx, "SELECT user_id FROM fixed_expenses WHERE id = $1", id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != userID) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find fixed expense: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fixed_expense_payments (fixed_expense_id, month) VALUES ($1, $2)
		ON CONFLICT (fixed_expense_id, month) DO NOTHING
	`, id, month)
	if err != nil {
		return fmt.Errorf("mark fixed expense paid: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// === ReportStore ===

func (s *Storage) UpsertMonthlyReport(ctx context.Context, r core.MonthlyReport) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO monthly_reports (user_id, month, income_total, expense_total, net_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, month) DO UPDATE SET
			income_total = EXCLUDED.income_total,
			expense_total = EXCLUDED.expense_total,
			net_total = EXCLUDED.net_total,
			updated_at = EXCLUDED.updated_at
	`, r.UserID, r.Month, r.IncomeTotal, r.ExpenseTotal, r.NetTotal, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert monthly report: %w", err)
	}
	return nil
}

func (s *Storage) GetMonthlyReport(ctx context.Context, userID uuid.UUID, month string) (core.MonthlyReport, error) {
	r := core.MonthlyReport{UserID: userID, Month: month}
	err := s.db.QueryRow(ctx, `
		SELECT income_total, expense_total, net_total, updated_at
		FROM monthly_reports WHERE user_id = $1 AND month = $2
	`, userID, month).Scan(&r.IncomeTotal, &r.ExpenseTotal, &r.NetTotal, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MonthlyReport{}, core.ErrNotFound
	}
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("get monthly report: %w", err)
	}
	return r, nil
}

// === ratelimit.Counter ===

// Increment calls the increment_rate_limit database function. A missing
// function or table is reported as ratelimit.ErrCounterUnavailable.
func (s *Storage) Increment(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	seconds := int(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	var ok bool
	err := s.db.QueryRow(ctx, "SELECT increment_rate_limit($1, $2, $3)", key, limit, seconds).Scan(&ok)
	if err != nil {
		return false, counterError(err)
	}
	return ok, nil
}

func counterError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == undefinedFunction || pgErr.Code == undefinedTable) {
		return fmt.Errorf("%w: %s", ratelimit.ErrCounterUnavailable, pgErr.Message)
	}
	return fmt.Errorf("increment rate limit: %w", err)
}

// PruneRateLimits removes windows that have ended.
func (s *Storage) PruneRateLimits(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM rate_limits WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
