package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

// IncomeService is owner-scoped CRUD over standalone income records.
type IncomeService struct {
	db        *sql.DB
	validator *ValidationHelper
	log       zerolog.Logger
}

func NewIncomeService(db *sql.DB) *IncomeService {
	return &IncomeService{
		db:        db,
		validator: NewValidationHelper(),
		log:       log.With().Str("service", "income").Logger(),
	}
}

type IncomeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source,omitempty" validate:"max=100"`
	Description string          `json:"description,omitempty" validate:"max=500"`
}

const incomeSelect = `
	SELECT id, amount, source, description, user_id, created_at, updated_at
	FROM income`

func scanIncome(row *sql.Row) (*models.Income, error) {
	var in models.Income
	err := row.Scan(&in.ID, &in.Amount, &in.Source, &in.Description,
		&in.UserID, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: income", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (is *IncomeService) listIncome(ctx context.Context, userID int) ([]models.Income, error) {
	rows, err := is.db.QueryContext(ctx,
		incomeSelect+` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	income := []models.Income{}
	for rows.Next() {
		var in models.Income
		if err := rows.Scan(&in.ID, &in.Amount, &in.Source, &in.Description,
			&in.UserID, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		income = append(income, in)
	}
	return income, rows.Err()
}

func (is *IncomeService) getIncome(ctx context.Context, userID int, id int64) (*models.Income, error) {
	return scanIncome(is.db.QueryRowContext(ctx,
		incomeSelect+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func (is *IncomeService) createIncome(ctx context.Context, userID int, req *IncomeRequest) (*models.Income, error) {
	if err := is.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	var id int64
	err := is.db.QueryRowContext(ctx, `
		INSERT INTO income (amount, source, description, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		req.Amount, req.Source, req.Description, userID).Scan(&id)
	if err != nil {
		return nil, err
	}

	is.log.Info().Int64("incomeId", id).Str("source", req.Source).Msg("income created")
	return is.getIncome(ctx, userID, id)
}

func (is *IncomeService) updateIncome(ctx context.Context, userID int, id int64, req *IncomeRequest) (*models.Income, error) {
	if err := is.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	result, err := is.db.ExecContext(ctx, `
		UPDATE income
		SET amount = $1, source = $2, description = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5`,
		req.Amount, req.Source, req.Description, id, userID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: income %d", ErrNotFound, id)
	}

	return is.getIncome(ctx, userID, id)
}

func (is *IncomeService) deleteIncome(ctx context.Context, userID int, id int64) error {
	result, err := is.db.ExecContext(ctx,
		`DELETE FROM income WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: income %d", ErrNotFound, id)
	}
	return nil
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

// ListIncome lists the caller's income records
// @Summary List income
// @Tags income
// @Produce json
// @Success 200 {array} models.Income
// @Router /income [get]
func (is *IncomeService) ListIncome(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	income, err := is.listIncome(r.Context(), userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, income)
}

// GetIncome returns one income record
// @Summary Get an income record
// @Tags income
// @Produce json
// @Success 200 {object} models.Income
// @Router /income/{id} [get]
func (is *IncomeService) GetIncome(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid income id", http.StatusBadRequest, nil)
		return
	}

	income, err := is.getIncome(r.Context(), userID, id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, income)
}

// CreateIncome creates an income record
// @Summary Create an income record
// @Tags income
// @Accept json
// @Produce json
// @Param request body IncomeRequest true "Income"
// @Success 201 {object} models.Income
// @Router /income [post]
func (is *IncomeService) CreateIncome(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	var req IncomeRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	income, err := is.createIncome(r.Context(), userID, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusCreated, income)
}

// UpdateIncome updates an income record
// @Summary Update an income record
// @Tags income
// @Accept json
// @Produce json
// @Success 200 {object} models.Income
// @Router /income/{id} [put]
func (is *IncomeService) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid income id", http.StatusBadRequest, nil)
		return
	}

	var req IncomeRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	income, err := is.updateIncome(r.Context(), userID, id, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, income)
}

// DeleteIncome deletes an income record
// @Summary Delete an income record
// @Tags income
// @Router /income/{id} [delete]
func (is *IncomeService) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid income id", http.StatusBadRequest, nil)
		return
	}

	if err := is.deleteIncome(r.Context(), userID, id); err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Income deleted"})
}
