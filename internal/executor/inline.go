package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
)

// Inline scores during Submit. The returned handle is already resolved.
type Inline struct {
	scorers ScorerSource
}

func NewInline(scorers ScorerSource) *Inline {
	return &Inline{scorers: scorers}
}

func (e *Inline) Submit(ctx context.Context, modelName string, records []models.Features) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := NewHandle(uuid.New().String(), nil)
	h.Resolve(Score(e.scorers, modelName, records))
	return h, nil
}

var _ Executor = (*Inline)(nil)
