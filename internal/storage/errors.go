// Package storage holds errors shared by the store implementations.
package storage

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrAlreadyExists = errors.New("storage: already exists")
	ErrInvalidAmount = errors.New("storage: amount cannot be stored exactly")
)

// CheckAmount refuses amounts a store would have to round or overflow.
func CheckAmount(d decimal.Decimal) error {
	if !models.ValidAmount(d) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	return nil
}
