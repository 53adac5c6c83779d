package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes debits for prediction work from balance top-ups.
type TransactionType string

const (
	TransactionDebit   TransactionType = "debit"
	TransactionDeposit TransactionType = "deposit"
)

// Transaction is a persisted, immutable ledger record.
// Amount is signed: debits are negative, deposits positive.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// MoneyScale is the number of decimal places every stored amount keeps.
const MoneyScale = 4

// maxMoney keeps amounts within NUMERIC(20,4) and within int64 once scaled.
var maxMoney = decimal.New(1, 14)

// ValidAmount reports whether d can be stored exactly, with no rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.Shift(MoneyScale).IsInteger() && d.Abs().LessThan(maxMoney)
}
