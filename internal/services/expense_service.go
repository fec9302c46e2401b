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

// ExpenseService is owner-scoped CRUD over standalone expense records. No
// cross-record invariants here, so each mutation is a single-row write.
type ExpenseService struct {
	db        *sql.DB
	validator *ValidationHelper
	log       zerolog.Logger
}

func NewExpenseService(db *sql.DB) *ExpenseService {
	return &ExpenseService{
		db:        db,
		validator: NewValidationHelper(),
		log:       log.With().Str("service", "expense").Logger(),
	}
}

type ExpenseRequest struct {
	Category    string          `json:"category" validate:"required,min=1,max=100"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate *models.Date    `json:"expenseDate,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=500"`
}

const expenseSelect = `
	SELECT id, category, amount, expense_date, description, user_id, created_at, updated_at
	FROM expenses`

func scanExpense(row *sql.Row) (*models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.Category, &e.Amount, &e.ExpenseDate, &e.Description,
		&e.UserID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: expense", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (es *ExpenseService) listExpenses(ctx context.Context, userID int) ([]models.Expense, error) {
	rows, err := es.db.QueryContext(ctx,
		expenseSelect+` WHERE user_id = $1 ORDER BY expense_date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.Category, &e.Amount, &e.ExpenseDate, &e.Description,
			&e.UserID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (es *ExpenseService) getExpense(ctx context.Context, userID int, id int64) (*models.Expense, error) {
	return scanExpense(es.db.QueryRowContext(ctx,
		expenseSelect+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func (es *ExpenseService) createExpense(ctx context.Context, userID int, req *ExpenseRequest) (*models.Expense, error) {
	if err := es.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	expenseDate := models.Today()
	if req.ExpenseDate != nil {
		expenseDate = *req.ExpenseDate
	}

	var id int64
	err := es.db.QueryRowContext(ctx, `
		INSERT INTO expenses (category, amount, expense_date, description, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		req.Category, req.Amount, expenseDate, req.Description, userID).Scan(&id)
	if err != nil {
		return nil, err
	}

	es.log.Info().Int64("expenseId", id).Str("category", req.Category).Msg("expense created")
	return es.getExpense(ctx, userID, id)
}

func (es *ExpenseService) updateExpense(ctx context.Context, userID int, id int64, req *ExpenseRequest) (*models.Expense, error) {
	if err := es.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	expenseDate := models.Today()
	if req.ExpenseDate != nil {
		expenseDate = *req.ExpenseDate
	}

	result, err := es.db.ExecContext(ctx, `
		UPDATE expenses
		SET category = $1, amount = $2, expense_date = $3, description = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6`,
		req.Category, req.Amount, expenseDate, req.Description, id, userID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: expense %d", ErrNotFound, id)
	}

	return es.getExpense(ctx, userID, id)
}

func (es *ExpenseService) deleteExpense(ctx context.Context, userID int, id int64) error {
	result, err := es.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: expense %d", ErrNotFound, id)
	}
	return nil
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

// ListExpenses lists the caller's expenses
// @Summary List expenses
// @Tags expenses
// @Produce json
// @Success 200 {array} models.Expense
// @Router /expenses [get]
func (es *ExpenseService) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	expenses, err := es.listExpenses(r.Context(), userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, expenses)
}

// GetExpense returns one expense
// @Summary Get an expense
// @Tags expenses
// @Produce json
// @Success 200 {object} models.Expense
// @Router /expenses/{id} [get]
func (es *ExpenseService) GetExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid expense id", http.StatusBadRequest, nil)
		return
	}

	expense, err := es.getExpense(r.Context(), userID, id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, expense)
}

// CreateExpense creates an expense
// @Summary Create an expense
// @Tags expenses
// @Accept json
// @Produce json
// @Param request body ExpenseRequest true "Expense"
// @Success 201 {object} models.Expense
// @Router /expenses [post]
func (es *ExpenseService) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	var req ExpenseRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	expense, err := es.createExpense(r.Context(), userID, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusCreated, expense)
}

// UpdateExpense updates an expense
// @Summary Update an expense
// @Tags expenses
// @Accept json
// @Produce json
// @Success 200 {object} models.Expense
// @Router /expenses/{id} [put]
func (es *ExpenseService) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid expense id", http.StatusBadRequest, nil)
		return
	}

	var req ExpenseRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	expense, err := es.updateExpense(r.Context(), userID, id, &req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, expense)
}

// DeleteExpense deletes an expense
// @Summary Delete an expense
// @Tags expenses
// @Router /expenses/{id} [delete]
func (es *ExpenseService) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		sendServiceError(w, ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid expense id", http.StatusBadRequest, nil)
		return
	}

	if err := es.deleteExpense(r.Context(), userID, id); err != nil {
		sendServiceError(w, err)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Expense deleted"})
}
