package interfaces

import (
	"context"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
)

type PredictionStore interface {
	CreateBatch(ctx context.Context, userID, modelName string, transactionID int64) (*models.PredictionBatch, error)
	CreatePrediction(ctx context.Context, batchID int64, features models.Features, answer int) (*models.Prediction, error)
	// SaveBatch writes the batch and all of its predictions, or nothing.
	SaveBatch(ctx context.Context, batch *models.PredictionBatch) error
	GetHistory(ctx context.Context, userID string) ([]models.BatchInfo, error)
	Reports(ctx context.Context) ([]models.PredictionsReport, error)
}

type PredictorStore interface {
	ListPredictors(ctx context.Context) ([]models.Predictor, error)
	GetPredictor(ctx context.Context, name string) (models.Predictor, error)
	CreatePredictor(ctx context.Context, p models.Predictor) error
}

// Store is everything the service persists, backed by one database.
type Store interface {
	LedgerStore
	PredictionStore
	PredictorStore
	Ping(ctx context.Context) error
	Close() error
}
