package interfaces

import (
	"context"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerStore persists balances and transactions.
// Debit must be atomic per user: it only applies when the balance covers amount.
type LedgerStore interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	SaveDeposit(ctx context.Context, tx *models.Transaction) error
	GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
}
