package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Features is one clinical feature record submitted for scoring.
// JSON names follow the wire format clients already send.
type Features struct {
	NDays         int     `json:"N_Days" validate:"gte=0"`
	Drug          string  `json:"Drug" validate:"required,oneof=D-penicillamine Placebo"`
	Age           int     `json:"Age" validate:"gte=0"`
	Sex           string  `json:"Sex" validate:"required,oneof=M F"`
	Ascites       string  `json:"Ascites" validate:"required,oneof=Y N"`
	Hepatomegaly  string  `json:"Hepatomegaly" validate:"required,oneof=Y N"`
	Spiders       string  `json:"Spiders" validate:"required,oneof=Y N"`
	Edema         string  `json:"Edema" validate:"required,oneof=N S Y"`
	Bilirubin     float64 `json:"Bilirubin" validate:"gte=0"`
	Cholesterol   float64 `json:"Cholesterol" validate:"gte=0"`
	Albumin       float64 `json:"Albumin" validate:"gte=0"`
	Copper        float64 `json:"Copper" validate:"gte=0"`
	AlkPhos       float64 `json:"Alk_Phos" validate:"gte=0"`
	SGOT          float64 `json:"SGOT" validate:"gte=0"`
	Tryglicerides float64 `json:"Tryglicerides" validate:"gte=0"`
	Platelets     float64 `json:"Platelets" validate:"gte=0"`
	Prothrombin   float64 `json:"Prothrombin" validate:"gte=0"`
	Stage         int     `json:"Stage" validate:"gte=1,lte=4"`
}

// Prediction is one persisted feature record with the answer produced for it.
type Prediction struct {
	ID       int64    `json:"id"`
	BatchID  int64    `json:"batch_id"`
	Features Features `json:"features"`
	Answer   int      `json:"answer"`
}

// PredictionBatch groups the predictions billed together in one request.
type PredictionBatch struct {
	ID            int64        `json:"id"`
	UserID        string       `json:"user_id"`
	PredictorName string       `json:"predictor_name"`
	TransactionID int64        `json:"transaction_id"`
	CreatedAt     time.Time    `json:"created_at"`
	Predictions   []Prediction `json:"predictions"`
}

// PredictionTarget wraps the produced answer on the wire.
type PredictionTarget struct {
	Answer int `json:"answer"`
}

// PredictionInfo pairs a submitted record with its answer.
type PredictionInfo struct {
	Features Features         `json:"features"`
	Target   PredictionTarget `json:"target"`
}

// BatchInfo is the history view of a settled batch.
type BatchInfo struct {
	ID          int64            `json:"id"`
	ModelName   string           `json:"model_name"`
	Predictions []PredictionInfo `json:"predictions"`
	Cost        decimal.Decimal  `json:"cost"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PredictionsReport counts settled batches per model.
type PredictionsReport struct {
	ModelName              string `json:"model_name"`
	TotalPredictionBatches int64  `json:"total_prediction_batches"`
}

// Info converts persisted predictions into their wire form, keeping order.
func (b *PredictionBatch) Info(cost decimal.Decimal) BatchInfo {
	infos := make([]PredictionInfo, 0, len(b.Predictions))
	for _, p := range b.Predictions {
		infos = append(infos, PredictionInfo{Features: p.Features, Target: PredictionTarget{Answer: p.Answer}})
	}
	return BatchInfo{
		ID:          b.ID,
		ModelName:   b.PredictorName,
		Predictions: infos,
		Cost:        cost,
		Timestamp:   b.CreatedAt,
	}
}
