package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"butce/internal/core"
	"butce/internal/log"
	"butce/internal/pagination"
	"butce/internal/storage"
)

//go:generate mockgen -destination=mocks/mock_publisher.go -package=mock_services butce/internal/services EventPublisher

// EventPublisher announces that a user's month changed. The AMQP client
// implements it.
type EventPublisher interface {
	PublishTransactionChanged(ctx context.Context, userID uuid.UUID, month string) error
}

// Invalidator drops derived data cached for a user.
type Invalidator interface {
	Invalidate(userID uuid.UUID)
}

// TransactionInput is a validated-at-the-edge request to record a transaction.
type TransactionInput struct {
	Amount      decimal.Decimal
	Type        core.TransactionType
	Category    string
	Description string
	Date        core.Date
}

// ListQuery selects a page of transactions. Month is optional; a malformed
// month falls back to the current one. An undecodable cursor is ignored.
type ListQuery struct {
	Month  string
	Cursor string
	Limit  int
}

// TransactionService orchestrates transaction writes across the store, the
// dashboard cache and AMQP.
type TransactionService struct {
	store       storage.TransactionStore
	events      EventPublisher
	invalidator Invalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewTransactionService(store storage.TransactionStore, events EventPublisher, invalidator Invalidator, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		store:       store,
		events:      events,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentTransaction),
		now:         time.Now,
	}
}

// CreateTransaction saves a transaction for userID and publishes a change
// message. Publishing failures are logged and do not fail the call.
func (s *TransactionService) CreateTransaction(ctx context.Context, userID uuid.UUID, in TransactionInput) (core.Transaction, error) {
	t := core.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      in.Amount.Round(2),
		Type:        in.Type,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		CreatedAt:   s.now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	month := core.MonthOf(t.Date.Time).Label
	s.logger.InfoContext(ctx, "Transaction created", log.NewFields().
		WithOperation(log.OpCreate).
		WithUser(userID.String(), month).
		WithTransaction(t.ID.String(), string(t.Type), t.Category).
		ToSlice()...)

	s.changed(ctx, userID, month)
	return t, nil
}

// DeleteTransaction removes one of userID's transactions.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	deleted, err := s.store.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return err
	}

	month := core.MonthOf(deleted.Date.Time).Label
	s.logger.InfoContext(ctx, "Transaction deleted", log.NewFields().
		WithOperation(log.OpDelete).
		WithUser(userID.String(), month).
		WithTransaction(id.String(), string(deleted.Type), deleted.Category).
		ToSlice()...)

	s.changed(ctx, userID, month)
	return nil
}

// ListTransactions returns one keyset page, newest first.
func (s *TransactionService) ListTransactions(ctx context.Context, userID uuid.UUID, q ListQuery) (pagination.Page[core.Transaction], error) {
	limit := pagination.ClampLimit(q.Limit)
	query := storage.TransactionQuery{UserID: userID, Limit: limit + 1}

	if q.Month != "" {
		period := core.MonthRangeUTC(q.Month, s.now())
		query.Period = &period
	}
	if q.Cursor != "" {
		if c, ok := pagination.Decode(q.Cursor); ok {
			if id, date, ok := c.Key(); ok {
				query.After = &storage.Keyset{Date: date, ID: id}
			}
		} else {
			s.logger.DebugContext(ctx, "Ignoring undecodable cursor", log.FieldUserID, userID.String())
		}
	}

	rows, err := s.store.ListTransactions(ctx, query)
	if err != nil {
		return pagination.Page[core.Transaction]{}, fmt.Errorf("list transactions: %w", err)
	}
	return pagination.Paginate(rows, limit, func(t core.Transaction) pagination.Cursor {
		return pagination.New(t.ID, t.Date.Time)
	}), nil
}

func (s *TransactionService) changed(ctx context.Context, userID uuid.UUID, month string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}

	if s.events == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping change message")
		return
	}
	if err := s.events.PublishTransactionChanged(ctx, userID, month); err != nil {
		// The transaction is stored; the worker catches up on its next refresh.
		s.logger.ErrorContext(ctx, "Failed to publish transaction change", log.NewFields().
			WithOperation(log.OpPublish).
			WithUser(userID.String(), month).
			WithError(err).
			ToSlice()...)
	}
}
