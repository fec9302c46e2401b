package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbook/backend/internal/models"
)

func partyRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "opening_balance", "user_id"}).
		AddRow(7, "Ravi Traders", "100", 1)
}

func TestSummaryService_partyLedgerSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewSummaryService(db, nil, ledger)
	ctx := context.Background()
	day1 := models.NewDate(2024, time.March, 1)
	day2 := models.NewDate(2024, time.March, 2)
	now := time.Now()

	t.Run("totals and outstanding agree with the entries", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 1).
			WillReturnRows(partyRow())
		// entriesForParty resolves the party again on the read path.
		mock.ExpectQuery("SELECT id FROM parties").
			WithArgs(int64(7), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("SELECT le.id, le.party_id, p.name").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(entryColumns()).
				AddRow(21, 7, "Ravi Traders", models.TxTypePurchase, "50", day1.Time, "", "r1", "", "150", now, now).
				AddRow(22, 7, "Ravi Traders", models.TxTypePayment, "30", day2.Time, "", "r2", "", "120", now, now))
		mock.ExpectQuery("COALESCE").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"purchases", "payments", "adjustments"}).
				AddRow("50", "30", "0"))

		summary, err := service.partyLedgerSummary(ctx, 1, 7)
		require.NoError(t, err)

		assert.Equal(t, int64(7), summary.PartyID)
		assert.Equal(t, "Ravi Traders", summary.PartyName)
		assert.True(t, summary.OpeningBalance.Equal(dec(100)))
		assert.True(t, summary.TotalPurchases.Equal(dec(50)))
		assert.True(t, summary.TotalPayments.Equal(dec(30)))
		// Outstanding = 100 + 50 - 30 = 120, matching the last running balance.
		assert.True(t, summary.OutstandingBalance.Equal(dec(120)))
		assert.Equal(t, 2, summary.TransactionCount)
		require.Len(t, summary.Transactions, 2)
		assert.True(t, summary.Transactions[1].RunningBalance.Equal(summary.OutstandingBalance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adjustments fold into the outstanding balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 1).
			WillReturnRows(partyRow())
		mock.ExpectQuery("SELECT id FROM parties").
			WithArgs(int64(7), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("SELECT le.id, le.party_id, p.name").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(entryColumns()).
				AddRow(21, 7, "Ravi Traders", models.TxTypeAdjustment, "-25", day1.Time, "", "r1", "", "75", now, now))
		mock.ExpectQuery("COALESCE").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"purchases", "payments", "adjustments"}).
				AddRow("0", "0", "-25"))

		summary, err := service.partyLedgerSummary(ctx, 1, 7)
		require.NoError(t, err)

		assert.True(t, summary.TotalAdjustments.Equal(dec(-25)))
		assert.True(t, summary.OutstandingBalance.Equal(dec(75)))
		assert.True(t, summary.Transactions[0].RunningBalance.Equal(summary.OutstandingBalance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("party of another user is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "opening_balance", "user_id"}))

		_, err := service.partyLedgerSummary(ctx, 2, 7)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSummaryService_PartyOutstanding(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	t.Run("cache miss computes and caches", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		service := NewSummaryService(db, rdb, NewLedgerService(db, rdb))

		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 1).
			WillReturnRows(partyRow())
		rmock.ExpectGet("outstanding:1:7").RedisNil()
		mock.ExpectQuery("COALESCE").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"purchases", "payments", "adjustments"}).
				AddRow("50", "30", "0"))
		rmock.ExpectSet("outstanding:1:7", "120", outstandingCacheTTL).SetVal("OK")

		party, balance, err := service.PartyOutstanding(ctx, 1, 7)
		require.NoError(t, err)
		assert.Equal(t, "Ravi Traders", party.Name)
		assert.True(t, balance.Equal(dec(120)))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("cache hit skips the totals query", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		service := NewSummaryService(db, rdb, NewLedgerService(db, rdb))

		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 1).
			WillReturnRows(partyRow())
		rmock.ExpectGet("outstanding:1:7").SetVal("120")

		_, balance, err := service.PartyOutstanding(ctx, 1, 7)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec(120)))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("works without redis", func(t *testing.T) {
		service := NewSummaryService(db, nil, NewLedgerService(db, nil))

		mock.ExpectQuery("SELECT id, name, opening_balance, user_id").
			WithArgs(int64(7), 1).
			WillReturnRows(partyRow())
		mock.ExpectQuery("COALESCE").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"purchases", "payments", "adjustments"}).
				AddRow("50", "30", "0"))

		_, balance, err := service.PartyOutstanding(ctx, 1, 7)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec(120)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
