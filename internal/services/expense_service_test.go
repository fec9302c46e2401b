package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbook/backend/internal/models"
)

func expenseColumns() []string {
	return []string{"id", "category", "amount", "expense_date", "description", "user_id", "created_at", "updated_at"}
}

func TestExpenseService_createExpense(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewExpenseService(db)
	ctx := context.Background()
	day := models.NewDate(2024, time.March, 5)
	now := time.Now()

	t.Run("creates with explicit date", func(t *testing.T) {
		req := &ExpenseRequest{Category: "groceries", Amount: dec(450), ExpenseDate: &day}

		mock.ExpectQuery("INSERT INTO expenses").
			WithArgs("groceries", "450", sqlmock.AnyArg(), "", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectQuery("SELECT id, category, amount, expense_date").
			WithArgs(int64(3), 1).
			WillReturnRows(sqlmock.NewRows(expenseColumns()).
				AddRow(3, "groceries", "450", day.Time, "", 1, now, now))

		expense, err := service.createExpense(ctx, 1, req)
		require.NoError(t, err)
		assert.Equal(t, "groceries", expense.Category)
		assert.Equal(t, "2024-03-05", expense.ExpenseDate.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := service.createExpense(ctx, 1, &ExpenseRequest{Category: "misc", Amount: dec(0)})
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExpenseService_deleteExpense(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewExpenseService(db)
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM expenses").
			WithArgs(int64(3), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.deleteExpense(ctx, 1, 3))
	})

	t.Run("expense of another user is not found", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM expenses").
			WithArgs(int64(3), 2).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.deleteExpense(ctx, 2, 3), ErrNotFound)
	})
}

func TestExpenseService_listExpenses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewExpenseService(db)
	now := time.Now()
	day := models.NewDate(2024, time.March, 5)

	mock.ExpectQuery("SELECT id, category, amount, expense_date").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(expenseColumns()).
			AddRow(3, "groceries", "450", day.Time, "", 1, now, now).
			AddRow(2, "fuel", "900", day.Time, "", 1, now, now))

	expenses, err := service.listExpenses(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.True(t, expenses[1].Amount.Equal(dec(900)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
