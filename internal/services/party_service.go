package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

// PartyService is plain owner-scoped CRUD over counter-parties. The one rule
// beyond CRUD: openingBalance is fixed at creation and never touched by
// updates; corrections go through an ADJUSTMENT ledger entry.
type PartyService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	log       zerolog.Logger
}

func NewPartyService(db *sql.DB, redisClient *redis.Client) *PartyService {
	return &PartyService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
		log:       log.With().Str("service", "party").Logger(),
	}
}

// PartyRequest is the create payload; openingBalance defaults to 0.
type PartyRequest struct {
	Name           string           `json:"name" validate:"required,min=1,max=200"`
	Phone          string           `json:"phone,omitempty" validate:"max=50"`
	Notes          string           `json:"notes,omitempty" validate:"max=1000"`
	OpeningBalance *decimal.Decimal `json:"openingBalance,omitempty"`
}

// PartyUpdateRequest updates name/phone/notes only. There is deliberately no
// openingBalance field here.
type PartyUpdateRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Phone string `json:"phone,omitempty" validate:"max=50"`
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

const partySelect = `
	SELECT id, name, phone, notes, opening_balance, user_id, created_at, updated_at
	FROM parties`

func scanParty(row *sql.Row) (*models.Party, error) {
	var p models.Party
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Notes, &p.OpeningBalance,
		&p.UserID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: party", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanParties(rows *sql.Rows) ([]models.Party, error) {
	defer rows.Close()
	parties := []models.Party{}
	for rows.Next() {
		var p models.Party
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Notes, &p.OpeningBalance,
			&p.UserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (ps *PartyService) listParties(ctx context.Context, userID int) ([]models.Party, error) {
	rows, err := ps.db.QueryContext(ctx, partySelect+` WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, err
	}
	return scanParties(rows)
}

func (ps *PartyService) getParty(ctx context.Context, userID int, id int64) (*models.Party, error) {
	return scanParty(ps.db.QueryRowContext(ctx,
		partySelect+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func (ps *PartyService) createParty(ctx context.Context, userID int, req *PartyRequest) (*models.Party, error) {
	if err := ps.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	openingBalance := decimal.Zero
	if req.OpeningBalance != nil {
		openingBalance = *req.OpeningBalance
	}

	var id int64
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO parties (name, phone, notes, opening_balance, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		req.Name, req.Phone, req.Notes, openingBalance, userID).Scan(&id)
	if err != nil {
		return nil, err
	}

	ps.log.Info().Int64("partyId", id).Str("name", req.Name).Msg("party created")
	return ps.getParty(ctx, userID, id)
}

// updateParty rewrites name/phone/notes. opening_balance is absent from the
// UPDATE on purpose.
func (ps *PartyService) updateParty(ctx context.Context, userID int, id int64, req *PartyUpdateRequest) (*models.Party, error) {
	if err := ps.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result, err := ps.db.ExecContext(ctx, `
		UPDATE parties
		SET name = $1, phone = $2, notes = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5`,
		req.Name, req.Phone, req.Notes, id, userID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: party %d", ErrNotFound, id)
	}

	return ps.getParty(ctx, userID, id)
}

// deleteParty removes a party and, via the FK cascade, all of its ledger
// entries. No orphaned entries survive a party deletion.
func (ps *PartyService) deleteParty(ctx context.Context, userID int, id int64) error {
	result, err := ps.db.ExecContext(ctx,
		`DELETE FROM parties WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: party %d", ErrNotFound, id)
	}

	if ps.redis != nil {
		if err := ps.redis.Del(ctx, outstandingCacheKey(userID, id)).Err(); err != nil {
			ps.log.Warn().Err(err).Int64("partyId", id).Msg("failed to invalidate outstanding balance cache")
		}
	}
	ps.log.Info().Int64("partyId", id).Msg("party deleted")
	return nil
}

func (ps *PartyService) searchParties(ctx context.Context, userID int, term string) ([]models.Party, error) {
	rows, err := ps.db.QueryContext(ctx,
		partySelect+` WHERE user_id = $1 AND name ILIKE '%' || $2 || '%' ORDER BY name ASC`,
		userID, term)
	if err != nil {
		return nil, err
	}
	return scanParties(rows)
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

// ListParties lists the caller's parties
// @Summary List parties
// @Tags parties
// @Produce json
// @Success 200 {array} models.Party
// @Router /parties [get]
func (ps *PartyService) ListParties(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	parties, err := ps.listParties(r.Context(), userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, parties)
}

// GetParty returns one party
// @Summary Get a party
// @Tags parties
// @Produce json
// @Success 200 {object} models.Party
// @Router /parties/{id} [get]
func (ps *PartyService) GetParty(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	party, err := ps.getParty(r.Context(), userID, id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, party)
}

// CreateParty creates a party
// @Summary Create a party
// @Tags parties
// @Accept json
// @Produce json
// @Param request body PartyRequest true "Party"
// @Success 201 {object} models.Party
// @Router /parties [post]
func (ps *PartyService) CreateParty(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}

	var req PartyRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	party, err := ps.createParty(r.Context(), userID, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusCreated, party)
}

// UpdateParty updates a party's contact fields
// @Summary Update a party
// @Tags parties
// @Accept json
// @Produce json
// @Param request body PartyUpdateRequest true "Party fields"
// @Success 200 {object} models.Party
// @Router /parties/{id} [put]
func (ps *PartyService) UpdateParty(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	var req PartyUpdateRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	party, err := ps.updateParty(r.Context(), userID, id, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, party)
}

// DeleteParty deletes a party and its entries
// @Summary Delete a party
// @Tags parties
// @Router /parties/{id} [delete]
func (ps *PartyService) DeleteParty(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	if err := ps.deleteParty(r.Context(), userID, id); err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Party deleted"})
}

// SearchParties searches parties by name substring, case-insensitive
// @Summary Search parties by name
// @Tags parties
// @Produce json
// @Param q query string true "Name substring"
// @Success 200 {array} models.Party
// @Router /parties/search [get]
func (ps *PartyService) SearchParties(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	parties, err := ps.searchParties(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, parties)
}
