package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"butce/internal/amqp"
	"butce/internal/core"
	"butce/internal/log"
)

// ReportRefresher recomputes and stores a monthly report.
type ReportRefresher interface {
	RefreshMonthlyReport(ctx context.Context, userID uuid.UUID, period core.MonthRange) (core.MonthlyReport, error)
}

// RateLimitPruner deletes expired rate-limit windows. The SQL backends
// implement it; the memory counter prunes itself.
type RateLimitPruner interface {
	PruneRateLimits(ctx context.Context) (int64, error)
}

type Config struct {
	// RefreshInterval is how often failed refreshes are retried and expired
	// rate-limit rows pruned (default: 15m)
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RefreshInterval: 15 * time.Minute}
}

type pendingKey struct {
	userID uuid.UUID
	month  string
}

// ReportWorker keeps monthly report snapshots current. It refreshes on every
// transaction.changed message and retries failed refreshes on a ticker, as a
// backup for messages that were requeued or lost.
type ReportWorker struct {
	reports ReportRefresher
	pruner  RateLimitPruner
	config  Config
	logger  *log.Logger

	pendingMu sync.Mutex
	pending   map[pendingKey]struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReportWorker creates a worker. pruner may be nil.
func NewReportWorker(reports ReportRefresher, pruner RateLimitPruner, config Config, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &ReportWorker{
		reports: reports,
		pruner:  pruner,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		pending: make(map[pendingKey]struct{}),
	}
}

// HandleTransactionChanged refreshes the report of the message's month. A
// failed refresh is remembered for the next tick and returned so the message
// is requeued.
func (w *ReportWorker) HandleTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	period, err := msg.Period()
	if err != nil {
		return fmt.Errorf("message month: %w", err)
	}

	w.logger.DebugContext(ctx, "Processing transaction change",
		log.FieldUserID, msg.UserID.String(),
		log.FieldMonth, period.Label)

	if err := w.refresh(ctx, msg.UserID, period); err != nil {
		w.markPending(msg.UserID, period.Label)
		return err
	}
	return nil
}

func (w *ReportWorker) refresh(ctx context.Context, userID uuid.UUID, period core.MonthRange) error {
	report, err := w.reports.RefreshMonthlyReport(ctx, userID, period)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to refresh monthly report", log.NewFields().
			WithOperation(log.OpRefresh).
			WithUser(userID.String(), period.Label).
			WithError(err).
			ToSlice()...)
		return fmt.Errorf("refresh %s: %w", period.Label, err)
	}

	w.logger.InfoContext(ctx, "Monthly report refreshed",
		log.FieldUserID, userID.String(),
		log.FieldMonth, report.Month,
		"net_total", report.NetTotal)
	return nil
}

func (w *ReportWorker) markPending(userID uuid.UUID, month string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[pendingKey{userID: userID, month: month}] = struct{}{}
}

// Pending returns how many refreshes are waiting for a retry.
func (w *ReportWorker) Pending() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

// ProcessPending retries every failed refresh once and returns how many
// succeeded.
func (w *ReportWorker) ProcessPending(ctx context.Context) int {
	w.pendingMu.Lock()
	keys := make([]pendingKey, 0, len(w.pending))
	for k := range w.pending {
		keys = append(keys, k)
	}
	w.pendingMu.Unlock()

	if len(keys) == 0 {
		return 0
	}
	w.logger.InfoContext(ctx, "Retrying pending report refreshes", "count", len(keys))

	done := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		period, err := core.ParseMonth(k.month)
		if err != nil {
			w.dropPending(k)
			continue
		}
		if err := w.refresh(ctx, k.userID, period); err != nil {
			continue
		}
		w.dropPending(k)
		done++
	}
	return done
}

func (w *ReportWorker) dropPending(k pendingKey) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	delete(w.pending, k)
}

// Start begins the maintenance loop. Returns an error if already running.
func (w *ReportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("report worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Report worker started", "refresh_interval", w.config.RefreshInterval.String())
	return nil
}

// Stop gracefully stops the loop and waits for it to finish. Only the first
// of concurrent calls closes the loop; the others return at once.
func (w *ReportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Report worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Report worker stop timed out")
		return ctx.Err()
	}
	return nil
}

func (w *ReportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ReportWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	w.prune(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessPending(ctx)
			w.prune(ctx)
		}
	}
}

func (w *ReportWorker) prune(ctx context.Context) {
	if w.pruner == nil {
		return
	}
	n, err := w.pruner.PruneRateLimits(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to prune rate limit windows", log.FieldError, err.Error())
		return
	}
	if n > 0 {
		w.logger.DebugContext(ctx, "Pruned rate limit windows", "count", n)
	}
}
