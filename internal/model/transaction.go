package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "deposit"
	TransactionTypeTraining         TransactionType = "training"
	TransactionTypeCancellation     TransactionType = "cancellation"
	TransactionTypeReferralBonus    TransactionType = "referral_bonus"
	TransactionTypeManualAdjustment TransactionType = "manual_adjustment"
)

// Valid reports whether the type is one the ledger accepts
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeTraining, TransactionTypeCancellation,
		TransactionTypeReferralBonus, TransactionTypeManualAdjustment:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. BalanceAfter equals the client's balance
// right after this entry was applied.
type Transaction struct {
	ID           int64           `json:"id"`
	ClientID     int64           `json:"client_id"`
	Amount       decimal.Decimal `json:"amount"` // положительная - пополнение, отрицательная - списание
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Type         TransactionType `json:"type"`
	Note         string          `json:"note"`
	BookingID    *int64          `json:"booking_id"`
	CreatedBy    *int64          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransactionFilter selects a page of a client's ledger
type TransactionFilter struct {
	ClientID int64
	Types    []TransactionType
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
