package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

// LedgerService owns the ledger entry lifecycle. Every mutation runs as one
// transaction: lock the party row, write the entry, recalculate every running
// balance for that party. The FOR UPDATE lock on the party row serializes
// concurrent mutations per party; mutations on different parties proceed in
// parallel.
type LedgerService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	log       zerolog.Logger
}

func NewLedgerService(db *sql.DB, redisClient *redis.Client) *LedgerService {
	return &LedgerService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
		log:       log.With().Str("service", "ledger").Logger(),
	}
}

// LedgerEntryRequest is the create-entry payload. The party may be referenced
// either flat ("partyId") or nested ("party": {"id": ...}); clients send both
// shapes.
type LedgerEntryRequest struct {
	PartyID         int64           `json:"partyId,omitempty"`
	Party           *PartyIDWrapper `json:"party,omitempty"`
	TransactionType string          `json:"transactionType" validate:"required,oneof=PURCHASE PAYMENT ADJUSTMENT"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate *models.Date    `json:"transactionDate,omitempty"`
	Description     string          `json:"description,omitempty" validate:"max=500"`
	ReferenceNumber string          `json:"referenceNumber,omitempty" validate:"max=100"`
	PaymentMode     string          `json:"paymentMode,omitempty" validate:"max=50"`
}

type PartyIDWrapper struct {
	ID int64 `json:"id"`
}

// PartyIDValue returns the party reference from either request shape.
func (r *LedgerEntryRequest) PartyIDValue() int64 {
	if r.PartyID != 0 {
		return r.PartyID
	}
	if r.Party != nil {
		return r.Party.ID
	}
	return 0
}

// LedgerEntryUpdateRequest carries a partial update: only non-nil fields are
// applied to the stored entry.
type LedgerEntryUpdateRequest struct {
	PartyID         *int64           `json:"partyId,omitempty"`
	Party           *PartyIDWrapper  `json:"party,omitempty"`
	TransactionType *string          `json:"transactionType,omitempty" validate:"omitempty,oneof=PURCHASE PAYMENT ADJUSTMENT"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	TransactionDate *models.Date     `json:"transactionDate,omitempty"`
	Description     *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	ReferenceNumber *string          `json:"referenceNumber,omitempty" validate:"omitempty,max=100"`
	PaymentMode     *string          `json:"paymentMode,omitempty" validate:"omitempty,max=50"`
}

func (r *LedgerEntryUpdateRequest) partyIDValue() *int64 {
	if r.PartyID != nil {
		return r.PartyID
	}
	if r.Party != nil {
		return &r.Party.ID
	}
	return nil
}

// validateAmount enforces the sign rule: PURCHASE and PAYMENT amounts are
// strictly positive; ADJUSTMENT carries its own sign and only zero is
// rejected.
func validateAmount(txType string, amount decimal.Decimal) error {
	switch txType {
	case models.TxTypeAdjustment:
		if amount.IsZero() {
			return fmt.Errorf("%w: adjustment amount must be non-zero", ErrValidation)
		}
	case models.TxTypePurchase, models.TxTypePayment:
		if !amount.IsPositive() {
			return fmt.Errorf("%w: amount must be positive", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txType)
	}
	return nil
}

// canonicalOrder sorts entries by transaction date ascending, ties broken by
// id ascending (insertion order).
func canonicalOrder(entries []models.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TransactionDate.Equal(entries[j].TransactionDate.Time) {
			return entries[i].TransactionDate.Before(entries[j].TransactionDate)
		}
		return entries[i].ID < entries[j].ID
	})
}

// computeRunningBalances is the arithmetic core of the recalculation engine:
// it sorts entries canonically and rewrites each RunningBalance as the
// opening balance plus the signed amounts of every entry up to and including
// it. Pure and deterministic, so running it twice changes nothing.
func computeRunningBalances(openingBalance decimal.Decimal, entries []models.LedgerEntry) {
	canonicalOrder(entries)
	balance := openingBalance
	for i := range entries {
		balance = balance.Add(entries[i].SignedAmount())
		entries[i].RunningBalance = balance
	}
}

// lockParty resolves a party by id and owner and takes the per-party mutation
// lock for the lifetime of tx. Cross-owner lookups surface as ErrNotFound.
func (ls *LedgerService) lockParty(tx *sql.Tx, partyID int64, userID int) (*models.Party, error) {
	var party models.Party
	err := tx.QueryRow(`
		SELECT id, name, opening_balance, user_id
		FROM parties
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, partyID, userID).
		Scan(&party.ID, &party.Name, &party.OpeningBalance, &party.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: party %d", ErrNotFound, partyID)
	}
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// recalculateRunningBalances re-derives every running balance for a party and
// persists them. Always a full pass over the party's entries: O(n) per
// mutation buys correct backdated inserts without incremental bookkeeping.
// Must run inside the mutating transaction so a failed write rolls back the
// whole pass.
func (ls *LedgerService) recalculateRunningBalances(tx *sql.Tx, party *models.Party) error {
	rows, err := tx.Query(`
		SELECT id, transaction_type, amount, transaction_date
		FROM ledger_entries
		WHERE party_id = $1
		ORDER BY transaction_date ASC, id ASC`, party.ID)
	if err != nil {
		return err
	}

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionType, &e.Amount, &e.TransactionDate); err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	computeRunningBalances(party.OpeningBalance, entries)

	for i := range entries {
		if _, err := tx.Exec(`
			UPDATE ledger_entries
			SET running_balance = $1, updated_at = NOW()
			WHERE id = $2`, entries[i].RunningBalance, entries[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// invalidateOutstanding drops the cached outstanding balance after a
// mutation.
func (ls *LedgerService) invalidateOutstanding(ctx context.Context, userID int, partyID int64) {
	if ls.redis == nil {
		return
	}
	if err := ls.redis.Del(ctx, outstandingCacheKey(userID, partyID)).Err(); err != nil {
		ls.log.Warn().Err(err).Int64("partyId", partyID).Msg("failed to invalidate outstanding balance cache")
	}
}

func (ls *LedgerService) getEntry(ctx context.Context, userID int, id int64) (*models.LedgerEntry, error) {
	return scanEntry(ls.db.QueryRowContext(ctx, `
		SELECT le.id, le.party_id, p.name, le.transaction_type, le.amount, le.transaction_date,
		       le.description, le.reference_number, le.payment_mode, le.running_balance,
		       le.created_at, le.updated_at
		FROM ledger_entries le
		JOIN parties p ON p.id = le.party_id
		WHERE le.id = $1 AND le.user_id = $2`, id, userID))
}

func scanEntry(row *sql.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.PartyID, &e.PartyName, &e.TransactionType, &e.Amount,
		&e.TransactionDate, &e.Description, &e.ReferenceNumber, &e.PaymentMode,
		&e.RunningBalance, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	defer rows.Close()
	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.PartyID, &e.PartyName, &e.TransactionType, &e.Amount,
			&e.TransactionDate, &e.Description, &e.ReferenceNumber, &e.PaymentMode,
			&e.RunningBalance, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// createEntry validates the request, writes the entry and reruns the
// recalculation pass, all inside one transaction. Returns the entry with its
// final running balance.
func (ls *LedgerService) createEntry(ctx context.Context, userID int, req *LedgerEntryRequest) (*models.LedgerEntry, error) {
	if err := ls.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.PartyIDValue() == 0 {
		return nil, fmt.Errorf("%w: partyId is required", ErrValidation)
	}
	if err := validateAmount(req.TransactionType, req.Amount); err != nil {
		return nil, err
	}

	txDate := models.Today()
	if req.TransactionDate != nil {
		txDate = *req.TransactionDate
	}
	refNumber := req.ReferenceNumber
	if refNumber == "" {
		refNumber = uuid.NewString()
	}

	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	party, err := ls.lockParty(tx, req.PartyIDValue(), userID)
	if err != nil {
		return nil, err
	}

	var entryID int64
	err = tx.QueryRow(`
		INSERT INTO ledger_entries
			(party_id, transaction_type, amount, transaction_date, description,
			 reference_number, payment_mode, running_balance, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		RETURNING id`,
		party.ID, req.TransactionType, req.Amount, txDate, req.Description,
		refNumber, req.PaymentMode, userID).Scan(&entryID)
	if err != nil {
		return nil, err
	}

	if err := ls.recalculateRunningBalances(tx, party); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ls.invalidateOutstanding(ctx, userID, party.ID)
	ls.log.Info().Int64("entryId", entryID).Int64("partyId", party.ID).
		Str("type", req.TransactionType).Str("amount", req.Amount.String()).
		Msg("ledger entry created")

	return ls.getEntry(ctx, userID, entryID)
}

// updateEntry applies a partial update and recalculates the affected
// parties. On reassignment the old and the new party are both locked (in
// ascending id order, to avoid lock cycles) and both recalculated in the same
// transaction.
func (ls *LedgerService) updateEntry(ctx context.Context, userID int, id int64, req *LedgerEntryUpdateRequest) (*models.LedgerEntry, error) {
	if err := ls.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current models.LedgerEntry
	err = tx.QueryRow(`
		SELECT id, party_id, transaction_type, amount, transaction_date,
		       description, reference_number, payment_mode
		FROM ledger_entries
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, id, userID).
		Scan(&current.ID, &current.PartyID, &current.TransactionType, &current.Amount,
			&current.TransactionDate, &current.Description, &current.ReferenceNumber,
			&current.PaymentMode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	oldPartyID := current.PartyID
	newPartyID := oldPartyID
	if p := req.partyIDValue(); p != nil && *p != oldPartyID {
		newPartyID = *p
	}

	// Lock parties in ascending id order to keep concurrent reassignments
	// deadlock-free.
	firstLock, secondLock := oldPartyID, newPartyID
	if firstLock > secondLock {
		firstLock, secondLock = secondLock, firstLock
	}
	parties := map[int64]*models.Party{}
	for _, pid := range []int64{firstLock, secondLock} {
		if _, ok := parties[pid]; ok {
			continue
		}
		party, err := ls.lockParty(tx, pid, userID)
		if err != nil {
			return nil, err
		}
		parties[pid] = party
	}

	current.PartyID = newPartyID
	if req.TransactionType != nil {
		current.TransactionType = *req.TransactionType
	}
	if req.Amount != nil {
		current.Amount = *req.Amount
	}
	if req.TransactionDate != nil {
		current.TransactionDate = *req.TransactionDate
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.ReferenceNumber != nil {
		current.ReferenceNumber = *req.ReferenceNumber
	}
	if req.PaymentMode != nil {
		current.PaymentMode = *req.PaymentMode
	}

	if err := validateAmount(current.TransactionType, current.Amount); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		UPDATE ledger_entries
		SET party_id = $1, transaction_type = $2, amount = $3, transaction_date = $4,
		    description = $5, reference_number = $6, payment_mode = $7, updated_at = NOW()
		WHERE id = $8`,
		current.PartyID, current.TransactionType, current.Amount, current.TransactionDate,
		current.Description, current.ReferenceNumber, current.PaymentMode, id); err != nil {
		return nil, err
	}

	// Recalculate the old party first, then the new one on reassignment.
	if err := ls.recalculateRunningBalances(tx, parties[oldPartyID]); err != nil {
		return nil, err
	}
	if newPartyID != oldPartyID {
		if err := ls.recalculateRunningBalances(tx, parties[newPartyID]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ls.invalidateOutstanding(ctx, userID, oldPartyID)
	if newPartyID != oldPartyID {
		ls.invalidateOutstanding(ctx, userID, newPartyID)
	}
	ls.log.Info().Int64("entryId", id).Int64("partyId", newPartyID).Msg("ledger entry updated")

	return ls.getEntry(ctx, userID, id)
}

// deleteEntry removes an entry and recalculates the remaining balances of its
// party.
func (ls *LedgerService) deleteEntry(ctx context.Context, userID int, id int64) error {
	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var partyID int64
	err = tx.QueryRow(`
		SELECT party_id FROM ledger_entries
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, id, userID).Scan(&partyID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: ledger entry %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	party, err := ls.lockParty(tx, partyID, userID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM ledger_entries WHERE id = $1`, id); err != nil {
		return err
	}

	if err := ls.recalculateRunningBalances(tx, party); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	ls.invalidateOutstanding(ctx, userID, partyID)
	ls.log.Info().Int64("entryId", id).Int64("partyId", partyID).Msg("ledger entry deleted")
	return nil
}

// resolveParty checks a party exists for this owner on the read path (no
// lock taken).
func (ls *LedgerService) resolveParty(ctx context.Context, userID int, partyID int64) error {
	var id int64
	err := ls.db.QueryRowContext(ctx,
		`SELECT id FROM parties WHERE id = $1 AND user_id = $2`, partyID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: party %d", ErrNotFound, partyID)
	}
	return err
}

const entrySelect = `
	SELECT le.id, le.party_id, p.name, le.transaction_type, le.amount, le.transaction_date,
	       le.description, le.reference_number, le.payment_mode, le.running_balance,
	       le.created_at, le.updated_at
	FROM ledger_entries le
	JOIN parties p ON p.id = le.party_id`

// entriesForParty returns all entries of a party in canonical order.
func (ls *LedgerService) entriesForParty(ctx context.Context, userID int, partyID int64) ([]models.LedgerEntry, error) {
	if err := ls.resolveParty(ctx, userID, partyID); err != nil {
		return nil, err
	}
	rows, err := ls.db.QueryContext(ctx, entrySelect+`
		WHERE le.party_id = $1
		ORDER BY le.transaction_date ASC, le.id ASC`, partyID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// entriesForPartyInRange returns entries with transactionDate within
// [start, end], inclusive, in canonical order.
func (ls *LedgerService) entriesForPartyInRange(ctx context.Context, userID int, partyID int64, start, end models.Date) ([]models.LedgerEntry, error) {
	if err := ls.resolveParty(ctx, userID, partyID); err != nil {
		return nil, err
	}
	rows, err := ls.db.QueryContext(ctx, entrySelect+`
		WHERE le.party_id = $1 AND le.transaction_date BETWEEN $2 AND $3
		ORDER BY le.transaction_date ASC, le.id ASC`, partyID, start, end)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

// CreateEntry handles ledger entry creation
// @Summary Create a ledger entry
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body LedgerEntryRequest true "Ledger entry"
// @Success 201 {object} models.LedgerEntry
// @Router /ledger/entries [post]
func (ls *LedgerService) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}

	var req LedgerEntryRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	entry, err := ls.createEntry(r.Context(), userID, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusCreated, entry)
}

// GetEntry returns a single ledger entry
// @Summary Get a ledger entry
// @Tags ledger
// @Produce json
// @Success 200 {object} models.LedgerEntry
// @Router /ledger/entries/{id} [get]
func (ls *LedgerService) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid entry id", http.StatusBadRequest, nil)
		return
	}

	entry, err := ls.getEntry(r.Context(), userID, id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, entry)
}

// UpdateEntry applies a partial update to a ledger entry
// @Summary Update a ledger entry
// @Tags ledger
// @Accept json
// @Produce json
// @Success 200 {object} models.LedgerEntry
// @Router /ledger/entries/{id} [put]
func (ls *LedgerService) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid entry id", http.StatusBadRequest, nil)
		return
	}

	var req LedgerEntryUpdateRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	entry, err := ls.updateEntry(r.Context(), userID, id, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, entry)
}

// DeleteEntry deletes a ledger entry
// @Summary Delete a ledger entry
// @Tags ledger
// @Router /ledger/entries/{id} [delete]
func (ls *LedgerService) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid entry id", http.StatusBadRequest, nil)
		return
	}

	if err := ls.deleteEntry(r.Context(), userID, id); err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Ledger entry deleted"})
}

// GetPartyEntries lists a party's entries in canonical order
// @Summary List ledger entries for a party
// @Tags ledger
// @Produce json
// @Success 200 {array} models.LedgerEntry
// @Router /ledger/parties/{partyId}/entries [get]
func (ls *LedgerService) GetPartyEntries(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	partyID, err := strconv.ParseInt(chi.URLParam(r, "partyId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	entries, err := ls.entriesForParty(r.Context(), userID, partyID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, entries)
}

// GetPartyEntriesDateRange lists a party's entries within a date range
// @Summary List ledger entries for a party within a date range
// @Tags ledger
// @Produce json
// @Param startDate query string true "Start date (YYYY-MM-DD)"
// @Param endDate query string true "End date (YYYY-MM-DD)"
// @Success 200 {array} models.LedgerEntry
// @Router /ledger/parties/{partyId}/entries/date-range [get]
func (ls *LedgerService) GetPartyEntriesDateRange(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	partyID, err := strconv.ParseInt(chi.URLParam(r, "partyId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	start, err := models.ParseDate(r.URL.Query().Get("startDate"))
	if err != nil {
		SendErrorResponse(w, "Invalid startDate", http.StatusBadRequest, nil)
		return
	}
	end, err := models.ParseDate(r.URL.Query().Get("endDate"))
	if err != nil {
		SendErrorResponse(w, "Invalid endDate", http.StatusBadRequest, nil)
		return
	}

	entries, err := ls.entriesForPartyInRange(r.Context(), userID, partyID, start, end)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, entries)
}
