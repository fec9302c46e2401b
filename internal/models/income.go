package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Income is a standalone earning record, the counterpart of Expense.
type Income struct {
	ID          int64           `json:"id" db:"id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Source      string          `json:"source,omitempty" db:"source"`
	Description string          `json:"description,omitempty" db:"description"`
	UserID      int             `json:"-" db:"user_id"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
