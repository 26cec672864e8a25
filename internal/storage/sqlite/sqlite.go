package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/middleware/ratelimit"
	"butce/internal/storage"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Repository is the single-file SQLite backend.
type Repository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

var _ storage.Store = (*Repository)(nil)

// NewRepository opens (creating if needed) the database at dbPath and applies
// migrations.
func NewRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.UserID.String(), t.Amount.String(), string(t.Type), t.Category,
		t.Description, t.Date.String(), t.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.FieldTransaction, t.ID.String(),
		log.FieldTxType, string(t.Type))
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error) {
	deleted, err := r.queryTransactions(ctx, `
		DELETE FROM transactions WHERE id = ? AND user_id = ?
		RETURNING id, user_id, amount, type, category, description, date, created_at`,
		id.String(), userID.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if len(deleted) == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return deleted[0], nil
}

func (r *Repository) ListTransactions(ctx context.Context, q storage.TransactionQuery) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{q.UserID.String()}
	)
	if q.Period != nil {
		where = append(where, "date >= ?", "date < ?")
		args = append(args, q.Period.Start.Format(core.DateLayout), q.Period.End.Format(core.DateLayout))
	}
	if q.After != nil {
		d := q.After.Date.UTC().Format(core.DateLayout)
		where = append(where, "(date < ? OR (date = ? AND id < ?))")
		args = append(args, d, d, q.After.ID.String())
	}
	query := `SELECT id, user_id, amount, type, category, description, date, created_at
		FROM transactions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date DESC, id DESC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return r.queryTransactions(ctx, query, args...)
}

func (r *Repository) MonthTransactions(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, storage.TransactionQuery{UserID: userID, Period: &period})
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t                            core.Transaction
			id, userID, amount, date, at string
			kind                         string
		)
		if err := rows.Scan(&id, &userID, &amount, &kind, &t.Category, &t.Description, &date, &at); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		if t.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("scan transaction user: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan transaction amount: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("scan transaction date: %w", err)
		}
		t.Type = core.TransactionType(kind)
		t.CreatedAt, _ = time.Parse(timeLayout, at)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) ListWallets(ctx context.Context, userID uuid.UUID) ([]core.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, balance, created_at FROM wallets WHERE user_id = ? ORDER BY created_at, id`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Wallet, 0)
	for rows.Next() {
		var (
			w                    core.Wallet
			id, balance, created string
		)
		if err := rows.Scan(&id, &w.Name, &balance, &created); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		if w.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		if w.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("scan wallet balance: %w", err)
		}
		w.UserID = userID
		w.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateWallet(ctx context.Context, w core.Wallet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, name, balance, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.ID.String(), w.UserID.String(), strings.TrimSpace(w.Name), w.Balance.String(),
		w.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (r *Repository) ListFixedExpenses(ctx context.Context, userID uuid.UUID, period core.MonthRange) ([]core.FixedExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.amount, f.category, f.frequency, f.start_date, p.month IS NOT NULL
		FROM fixed_expenses f
		LEFT JOIN fixed_expense_payments p ON p.fixed_expense_id = f.id AND p.month = ?
		WHERE f.user_id = ?
		ORDER BY f.name, f.id`,
		period.Label, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list fixed expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.FixedExpense, 0)
	for rows.Next() {
		var (
			fe                   core.FixedExpense
			id, amount, start, f string
		)
		if err := rows.Scan(&id, &fe.Name, &amount, &fe.Category, &f, &start, &fe.Paid); err != nil {
			return nil, fmt.Errorf("scan fixed expense: %w", err)
		}
		if fe.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan fixed expense id: %w", err)
		}
		if fe.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan fixed expense amount: %w", err)
		}
		if fe.StartDate, err = core.ParseDate(start); err != nil {
			return nil, fmt.Errorf("scan fixed expense start: %w", err)
		}
		fe.UserID = userID
		fe.Frequency = core.Frequency(f)
		out = append(out, fe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixed expenses: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateFixedExpense(ctx context.Context, fe core.FixedExpense) error {
	if err := fe.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fixed_expenses (id, user_id, name, amount, category, frequency, start_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fe.ID.String(), fe.UserID.String(), strings.TrimSpace(fe.Name), fe.Amount.String(),
		fe.Category, string(fe.Frequency), fe.StartDate.String())
	if err != nil {
		return fmt.Errorf("create fixed expense: %w", err)
	}
	return nil
}

func (r *Repository) MarkFixedExpensePaid(ctx context.Context, userID, id uuid.UUID, month string) error {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM fixed_expenses WHERE id = ?`, id.String()).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID.String()) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find fixed expense: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fixed_expense_payments (fixed_expense_id, month, paid_at) VALUES (?, ?, ?)
		ON CONFLICT (fixed_expense_id, month) DO NOTHING`,
		id.String(), month, r.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("mark fixed expense paid: %w", err)
	}
	return nil
}

func (r *Repository) UpsertMonthlyReport(ctx context.Context, rep core.MonthlyReport) error {
	if rep.UpdatedAt.IsZero() {
		rep.UpdatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_reports (user_id, month, income_total, expense_total, net_total, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			income_total = excluded.income_total,
			expense_total = excluded.expense_total,
			net_total = excluded.net_total,
			updated_at = excluded.updated_at`,
		rep.UserID.String(), rep.Month, rep.IncomeTotal, rep.ExpenseTotal, rep.NetTotal,
		rep.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert monthly report: %w", err)
	}
	return nil
}

func (r *Repository) GetMonthlyReport(ctx context.Context, userID uuid.UUID, month string) (core.MonthlyReport, error) {
	rep := core.MonthlyReport{UserID: userID, Month: month}
	var updated string
	err := r.db.QueryRowContext(ctx, `
		SELECT income_total, expense_total, net_total, updated_at
		FROM monthly_reports WHERE user_id = ? AND month = ?`,
		userID.String(), month).Scan(&rep.IncomeTotal, &rep.ExpenseTotal, &rep.NetTotal, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyReport{}, core.ErrNotFound
	}
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("get monthly report: %w", err)
	}
	rep.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return rep, nil
}

// Increment implements ratelimit.Counter with a fixed window kept in the
// rate_limits table. The upsert is a single statement, so concurrent hits on
// one key serialize in SQLite.
func (r *Repository) Increment(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now().UnixMilli()
	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (key, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limits.expires_at <= ? THEN 1 ELSE rate_limits.count + 1 END,
			expires_at = CASE WHEN rate_limits.expires_at <= ? THEN excluded.expires_at ELSE rate_limits.expires_at END
		RETURNING count`,
		key, now+window.Milliseconds(), now, now).Scan(&count)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return false, fmt.Errorf("%w: %v", ratelimit.ErrCounterUnavailable, err)
		}
		return false, fmt.Errorf("increment rate limit: %w", err)
	}
	return count <= limit, nil
}

// PruneRateLimits removes windows that have ended.
func (r *Repository) PruneRateLimits(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE expires_at <= ?`, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return res.RowsAffected()
}
