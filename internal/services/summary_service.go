package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

// outstandingCacheTTL bounds staleness if an invalidation is ever missed;
// mutations delete the key eagerly.
const outstandingCacheTTL = 10 * time.Minute

func outstandingCacheKey(userID int, partyID int64) string {
	return fmt.Sprintf("outstanding:%d:%d", userID, partyID)
}

// SummaryService aggregates a party's ledger: totals per transaction type and
// the outstanding balance. It reads directly from the store; running balances
// on the returned entries are whatever the last completed recalculation
// wrote.
type SummaryService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
	log    zerolog.Logger
}

func NewSummaryService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService) *SummaryService {
	return &SummaryService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		log:    log.With().Str("service", "summary").Logger(),
	}
}

func (ss *SummaryService) resolveParty(ctx context.Context, userID int, partyID int64) (*models.Party, error) {
	var party models.Party
	err := ss.db.QueryRowContext(ctx, `
		SELECT id, name, opening_balance, user_id
		FROM parties
		WHERE id = $1 AND user_id = $2`, partyID, userID).
		Scan(&party.ID, &party.Name, &party.OpeningBalance, &party.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: party %d", ErrNotFound, partyID)
	}
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// totals returns the summed purchase, payment and adjustment amounts for a
// party.
func (ss *SummaryService) totals(ctx context.Context, partyID int64) (purchases, payments, adjustments decimal.Decimal, err error) {
	err = ss.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'PURCHASE'), 0),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'PAYMENT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'ADJUSTMENT'), 0)
		FROM ledger_entries
		WHERE party_id = $1`, partyID).
		Scan(&purchases, &payments, &adjustments)
	return purchases, payments, adjustments, err
}

// outstanding computes openingBalance + purchases - payments + adjustments,
// the canonical outstanding-balance formula. It equals the last entry's
// running balance.
func outstanding(party *models.Party, purchases, payments, adjustments decimal.Decimal) decimal.Decimal {
	return party.OpeningBalance.Add(purchases).Sub(payments).Add(adjustments)
}

// partyLedgerSummary assembles the full summary view: totals, outstanding
// balance and every entry in canonical order.
func (ss *SummaryService) partyLedgerSummary(ctx context.Context, userID int, partyID int64) (*models.LedgerSummary, error) {
	party, err := ss.resolveParty(ctx, userID, partyID)
	if err != nil {
		return nil, err
	}

	entries, err := ss.ledger.entriesForParty(ctx, userID, partyID)
	if err != nil {
		return nil, err
	}

	purchases, payments, adjustments, err := ss.totals(ctx, partyID)
	if err != nil {
		return nil, err
	}

	return &models.LedgerSummary{
		PartyID:            party.ID,
		PartyName:          party.Name,
		OpeningBalance:     party.OpeningBalance,
		TotalPurchases:     purchases,
		TotalPayments:      payments,
		TotalAdjustments:   adjustments,
		OutstandingBalance: outstanding(party, purchases, payments, adjustments),
		TransactionCount:   len(entries),
		Transactions:       entries,
	}, nil
}

// PartyOutstanding returns a party's current outstanding balance, serving
// from the redis cache when possible. Used by the polling endpoint and the
// payment-QR handler.
func (ss *SummaryService) PartyOutstanding(ctx context.Context, userID int, partyID int64) (*models.Party, decimal.Decimal, error) {
	party, err := ss.resolveParty(ctx, userID, partyID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if ss.redis != nil {
		cached, err := ss.redis.Get(ctx, outstandingCacheKey(userID, partyID)).Result()
		if err == nil {
			if balance, derr := decimal.NewFromString(cached); derr == nil {
				return party, balance, nil
			}
		}
	}

	purchases, payments, adjustments, err := ss.totals(ctx, partyID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	balance := outstanding(party, purchases, payments, adjustments)

	if ss.redis != nil {
		if err := ss.redis.Set(ctx, outstandingCacheKey(userID, partyID), balance.String(), outstandingCacheTTL).Err(); err != nil {
			ss.log.Warn().Err(err).Int64("partyId", partyID).Msg("failed to cache outstanding balance")
		}
	}

	return party, balance, nil
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

// GetPartySummary returns totals, outstanding balance and the full entry list
// @Summary Get a party's ledger summary
// @Tags ledger
// @Produce json
// @Success 200 {object} models.LedgerSummary
// @Router /ledger/parties/{partyId}/summary [get]
func (ss *SummaryService) GetPartySummary(w http.ResponseWriter, r *http.Request) {
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

	summary, err := ss.partyLedgerSummary(r.Context(), userID, partyID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, summary)
}

// GetPartyOutstanding returns only the outstanding balance, for polling
// @Summary Get a party's outstanding balance
// @Tags ledger
// @Produce json
// @Success 200 {object} map[string]any
// @Router /ledger/parties/{partyId}/outstanding [get]
func (ss *SummaryService) GetPartyOutstanding(w http.ResponseWriter, r *http.Request) {
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

	party, balance, err := ss.PartyOutstanding(r.Context(), userID, partyID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]any{
		"partyId":            party.ID,
		"partyName":          party.Name,
		"outstandingBalance": balance,
	})
}
