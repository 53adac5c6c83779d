package models

import "github.com/shopspring/decimal"

// Predictor is a catalog entry: a named model and what one prediction costs.
type Predictor struct {
	Name string          `json:"name" yaml:"name"`
	Cost decimal.Decimal `json:"cost" yaml:"-"`
}
