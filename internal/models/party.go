package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party is a counter-party the owner exchanges money with. Every party is
// scoped to the user that created it; cross-owner lookups behave as not found.
type Party struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Phone          string          `json:"phone,omitempty" db:"phone"`
	Notes          string          `json:"notes,omitempty" db:"notes"`
	OpeningBalance decimal.Decimal `json:"openingBalance" db:"opening_balance"`
	UserID         int             `json:"-" db:"user_id"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}
