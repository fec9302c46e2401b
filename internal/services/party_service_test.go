package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partyColumns() []string {
	return []string{"id", "name", "phone", "notes", "opening_balance", "user_id", "created_at", "updated_at"}
}

func TestPartyService_createParty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPartyService(db, nil)
	ctx := context.Background()
	now := time.Now()

	t.Run("with opening balance", func(t *testing.T) {
		opening := dec(100)
		req := &PartyRequest{Name: "Ravi Traders", Phone: "+919812345678", OpeningBalance: &opening}

		mock.ExpectQuery("INSERT INTO parties").
			WithArgs("Ravi Traders", "+919812345678", "", "100", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("SELECT id, name, phone, notes, opening_balance").
			WithArgs(int64(7), 1).
			WillReturnRows(sqlmock.NewRows(partyColumns()).
				AddRow(7, "Ravi Traders", "+919812345678", "", "100", 1, now, now))

		party, err := service.createParty(ctx, 1, req)
		require.NoError(t, err)
		assert.True(t, party.OpeningBalance.Equal(dec(100)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("opening balance defaults to zero", func(t *testing.T) {
		req := &PartyRequest{Name: "Mehta & Sons"}

		mock.ExpectQuery("INSERT INTO parties").
			WithArgs("Mehta & Sons", "", "", "0", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectQuery("SELECT id, name, phone, notes, opening_balance").
			WithArgs(int64(8), 1).
			WillReturnRows(sqlmock.NewRows(partyColumns()).
				AddRow(8, "Mehta & Sons", "", "", "0", 1, now, now))

		party, err := service.createParty(ctx, 1, req)
		require.NoError(t, err)
		assert.True(t, party.OpeningBalance.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty name before any write", func(t *testing.T) {
		_, err := service.createParty(ctx, 1, &PartyRequest{Name: ""})
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPartyService_updateParty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPartyService(db, nil)
	ctx := context.Background()
	now := time.Now()

	t.Run("updates contact fields, never the opening balance", func(t *testing.T) {
		req := &PartyUpdateRequest{Name: "Ravi Traders Pvt Ltd", Phone: "+919800000000", Notes: "wholesale"}

		// The UPDATE carries exactly name/phone/notes. A query touching
		// opening_balance would not match and the test would fail.
		mock.ExpectExec("SET name = \\$1, phone = \\$2, notes = \\$3, updated_at = NOW\\(\\)").
			WithArgs("Ravi Traders Pvt Ltd", "+919800000000", "wholesale", int64(7), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, name, phone, notes, opening_balance").
			WithArgs(int64(7), 1).
			WillReturnRows(sqlmock.NewRows(partyColumns()).
				AddRow(7, "Ravi Traders Pvt Ltd", "+919800000000", "wholesale", "100", 1, now, now))

		party, err := service.updateParty(ctx, 1, 7, req)
		require.NoError(t, err)
		assert.Equal(t, "Ravi Traders Pvt Ltd", party.Name)
		assert.True(t, party.OpeningBalance.Equal(dec(100)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("party of another user is not found", func(t *testing.T) {
		req := &PartyUpdateRequest{Name: "Ravi Traders"}

		mock.ExpectExec("UPDATE parties").
			WithArgs("Ravi Traders", "", "", int64(7), 2).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := service.updateParty(ctx, 2, 7, req)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPartyService_deleteParty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPartyService(db, nil)
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM parties").
			WithArgs(int64(7), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.deleteParty(ctx, 1, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("party of another user is not found", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM parties").
			WithArgs(int64(7), 2).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.deleteParty(ctx, 2, 7), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPartyService_searchParties(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPartyService(db, nil)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("ILIKE").
		WithArgs(1, "ravi").
		WillReturnRows(sqlmock.NewRows(partyColumns()).
			AddRow(7, "Ravi Traders", "", "", "100", 1, now, now))

	parties, err := service.searchParties(ctx, 1, "ravi")
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, "Ravi Traders", parties[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
