package settlement

import (
	"errors"
	"fmt"
)

var ErrEmptyBatch = errors.New("settlement: batch has no records")

const (
	StageFinalize = "finalize"
	StageBatch    = "batch"
)

// PredictionFailedError means the model produced no usable result. The
// reservation has been refunded by the time the caller sees it.
type PredictionFailedError struct {
	Cause error
}

func (e *PredictionFailedError) Error() string {
	return "settlement: prediction failed: " + e.Cause.Error()
}

func (e *PredictionFailedError) Unwrap() error { return e.Cause }

// PersistenceError reports a store failure after the predictions were made.
// At the finalize stage the user is refunded. At the batch stage the charge
// stands and TransactionID identifies it for reconciliation.
type PersistenceError struct {
	Stage         string
	TransactionID int64
	Refunded      bool
	Err           error
}

func (e *PersistenceError) Error() string {
	if e.Stage == StageBatch {
		return fmt.Sprintf("settlement: store batch for transaction %d: %v", e.TransactionID, e.Err)
	}
	return fmt.Sprintf("settlement: %s: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
