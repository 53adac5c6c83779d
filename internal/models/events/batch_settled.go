package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchSettled is published once a prediction batch has been charged and stored.
type BatchSettled struct {
	BatchID       int64           `json:"batch_id"`
	TransactionID int64           `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	ModelName     string          `json:"model_name"`
	Predictions   int             `json:"predictions"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// ReservationRefunded is published when a failed batch returns its hold to the user.
type ReservationRefunded struct {
	ReservationID string          `json:"reservation_id"`
	UserID        string          `json:"user_id"`
	ModelName     string          `json:"model_name"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
