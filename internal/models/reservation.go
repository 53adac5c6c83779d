package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is a temporary hold of funds against a user's balance.
// It lives only in the ledger process and ends with exactly one finalize or cancel.
type Reservation struct {
	ID        string          // uuid minted at reserve time
	UserID    string          // whose balance was debited
	Amount    decimal.Decimal // held amount, never negative
	CreatedAt time.Time
}

// Balance is the spendable amount owned by a user.
type Balance struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
