package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butce/internal/core"
	"butce/internal/pagination"
	mock_services "butce/internal/services/mocks"
	"butce/internal/storage/memory"
)

var fixedNow = time.Date(2025, 12, 21, 10, 0, 0, 0, time.UTC)

type invalidations struct{ users []uuid.UUID }

func (i *invalidations) Invalidate(userID uuid.UUID) { i.users = append(i.users, userID) }

func expenseInput(amount string, category string, date core.Date) TransactionInput {
	return TransactionInput{
		Amount:      decimal.RequireFromString(amount),
		Type:        core.Expense,
		Category:    category,
		Description: "  market  ",
		Date:        date,
	}
}

func TestTransactionService_CreatePublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	defer store.Close()
	events := mock_services.NewMockEventPublisher(ctrl)
	inv := &invalidations{}
	svc := NewTransactionService(store, events, inv, nil)
	svc.now = func() time.Time { return fixedNow }

	user := uuid.New()
	events.EXPECT().PublishTransactionChanged(gomock.Any(), user, "2025-12").Return(nil)

	tx, err := svc.CreateTransaction(context.Background(), user, expenseInput("12.345", "Beslenme", core.NewDate(2025, 12, 13)))
	require.NoError(t, err)
	assert.Equal(t, user, tx.UserID)
	assert.NotEqual(t, uuid.Nil, tx.ID)
	assert.Equal(t, "12.35", tx.Amount.StringFixed(2))
	assert.Equal(t, "market", tx.Description)
	assert.Equal(t, fixedNow, tx.CreatedAt)
	assert.Equal(t, []uuid.UUID{user}, inv.users)

	stored, err := store.MonthTransactions(context.Background(), user, core.MonthRangeUTC("2025-12", fixedNow))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestTransactionService_PublishFailureDoesNotFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	defer store.Close()
	events := mock_services.NewMockEventPublisher(ctrl)
	svc := NewTransactionService(store, events, nil, nil)

	events.EXPECT().PublishTransactionChanged(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	_, err := svc.CreateTransaction(context.Background(), uuid.New(), expenseInput("10", "Ulaşım", core.NewDate(2025, 12, 1)))
	assert.NoError(t, err)
}

func TestTransactionService_CreateValidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	defer store.Close()
	svc := NewTransactionService(store, mock_services.NewMockEventPublisher(ctrl), nil, nil)

	tests := []struct {
		name string
		in   TransactionInput
		err  error
	}{
		{"zero amount", expenseInput("0", "Beslenme", core.NewDate(2025, 12, 1)), core.ErrInvalidAmount},
		{"negative amount", expenseInput("-5", "Beslenme", core.NewDate(2025, 12, 1)), core.ErrInvalidAmount},
		{"blank category", expenseInput("5", "   ", core.NewDate(2025, 12, 1)), core.ErrEmptyCategory},
		{"bad type", TransactionInput{Amount: decimal.NewFromInt(5), Type: "transfer", Category: "x", Date: core.NewDate(2025, 12, 1)}, core.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTransaction(context.Background(), uuid.New(), tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTransactionService_Delete(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	defer store.Close()
	events := mock_services.NewMockEventPublisher(ctrl)
	svc := NewTransactionService(store, events, nil, nil)
	user := uuid.New()

	events.EXPECT().PublishTransactionChanged(gomock.Any(), user, "2025-11").Return(nil).Times(2)

	tx, err := svc.CreateTransaction(context.Background(), user, expenseInput("5", "Beslenme", core.NewDate(2025, 11, 3)))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteTransaction(context.Background(), uuid.New(), tx.ID), core.ErrNotFound)
	require.NoError(t, svc.DeleteTransaction(context.Background(), user, tx.ID))
	assert.ErrorIs(t, svc.DeleteTransaction(context.Background(), user, tx.ID), core.ErrNotFound)
}

func TestTransactionService_ListPages(t *testing.T) {
	store := memory.New()
	defer store.Close()
	svc := NewTransactionService(store, nil, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()
	user := uuid.New()

	for day := 1; day <= 5; day++ {
		_, err := svc.CreateTransaction(ctx, user, expenseInput("1", "Beslenme", core.NewDate(2025, 12, day)))
		require.NoError(t, err)
	}
	_, err := svc.CreateTransaction(ctx, user, expenseInput("1", "Beslenme", core.NewDate(2025, 11, 30)))
	require.NoError(t, err)

	first, err := svc.ListTransactions(ctx, user, ListQuery{Month: "2025-12", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "2025-12-05", first.Items[0].Date.String())
	require.NotEmpty(t, first.NextCursor)

	var days []string
	page := first
	for {
		for _, tx := range page.Items {
			days = append(days, tx.Date.String())
		}
		if page.NextCursor == "" {
			break
		}
		page, err = svc.ListTransactions(ctx, user, ListQuery{Month: "2025-12", Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"2025-12-05", "2025-12-04", "2025-12-03", "2025-12-02", "2025-12-01"}, days)

	all, err := svc.ListTransactions(ctx, user, ListQuery{Cursor: "%%%not-a-cursor"})
	require.NoError(t, err)
	assert.Len(t, all.Items, 6)
	assert.Empty(t, all.NextCursor)

	clamped, err := svc.ListTransactions(ctx, user, ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(clamped.Items), pagination.MaxLimit)
}
