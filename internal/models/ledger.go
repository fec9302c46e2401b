package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types for ledger entries. PURCHASE and ADJUSTMENT increase the
// amount a party owes, PAYMENT decreases it. ADJUSTMENT amounts may be
// negative (the one type allowed to carry its own sign).
const (
	TxTypePurchase   = "PURCHASE"
	TxTypePayment    = "PAYMENT"
	TxTypeAdjustment = "ADJUSTMENT"
)

// LedgerEntry is one dated transaction against a party's balance.
//
// RunningBalance is derived, never caller-supplied: after every mutation the
// ledger service rewrites it for the whole party in canonical order
// (transaction_date ASC, id ASC). The id is a bigserial, so insertion order
// is the tie-break for same-day entries.
type LedgerEntry struct {
	ID              int64           `json:"id" db:"id"`
	PartyID         int64           `json:"partyId" db:"party_id"`
	PartyName       string          `json:"partyName,omitempty" db:"party_name"`
	TransactionType string          `json:"transactionType" db:"transaction_type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	TransactionDate Date            `json:"transactionDate" db:"transaction_date"`
	Description     string          `json:"description,omitempty" db:"description"`
	ReferenceNumber string          `json:"referenceNumber,omitempty" db:"reference_number"`
	PaymentMode     string          `json:"paymentMode,omitempty" db:"payment_mode"`
	RunningBalance  decimal.Decimal `json:"runningBalance" db:"running_balance"`
	UserID          int             `json:"-" db:"user_id"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// SignedAmount maps the transaction type onto the sign the recalculation
// engine applies: +amount for PURCHASE, -amount for PAYMENT, and the amount
// as given (already signed) for ADJUSTMENT.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.TransactionType == TxTypePayment {
		return e.Amount.Neg()
	}
	return e.Amount
}

// LedgerSummary aggregates a party's ledger for the summary endpoint.
// OutstandingBalance = openingBalance + totalPurchases - totalPayments +
// totalAdjustments, which by construction equals the last entry's
// runningBalance.
type LedgerSummary struct {
	PartyID            int64           `json:"partyId"`
	PartyName          string          `json:"partyName"`
	OpeningBalance     decimal.Decimal `json:"openingBalance"`
	TotalPurchases     decimal.Decimal `json:"totalPurchases"`
	TotalPayments      decimal.Decimal `json:"totalPayments"`
	TotalAdjustments   decimal.Decimal `json:"totalAdjustments"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	TransactionCount   int             `json:"transactionCount"`
	Transactions       []LedgerEntry   `json:"transactions"`
}
