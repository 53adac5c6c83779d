// Package executor runs prediction jobs off the request path and hands back
// a Handle the caller awaits with a bounded wait.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/scoring"
)

var (
	ErrTimeout = errors.New("executor: prediction timed out")
	ErrClosed  = errors.New("executor: closed")
)

// ExecutionError carries the worker-side failure text back to the caller.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "executor: prediction failed: " + e.Message
}

// Executor accepts a batch for scoring and returns without waiting for it.
type Executor interface {
	Submit(ctx context.Context, modelName string, records []models.Features) (*Handle, error)
}

// ScorerSource resolves a model name to a loaded scorer.
type ScorerSource interface {
	Scorer(name string) (scoring.Scorer, error)
}

// Score runs every record through the named model. Answer i belongs to records[i].
// Any failure is returned as an *ExecutionError.
func Score(source ScorerSource, modelName string, records []models.Features) ([]int, error) {
	scorer, err := source.Scorer(modelName)
	if err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}
	answers := make([]int, len(records))
	for i, rec := range records {
		answer, err := scorer.Predict(rec)
		if err != nil {
			return nil, &ExecutionError{Message: fmt.Sprintf("record %d: %v", i, err)}
		}
		answers[i] = answer
	}
	return answers, nil
}
