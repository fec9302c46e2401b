package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a standalone spend record. Unlike ledger entries it has no
// cross-record invariants, so mutations are plain single-row writes.
type Expense struct {
	ID          int64           `json:"id" db:"id"`
	Category    string          `json:"category" db:"category"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	ExpenseDate Date            `json:"expenseDate" db:"expense_date"`
	Description string          `json:"description,omitempty" db:"description"`
	UserID      int             `json:"-" db:"user_id"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
