package kafka

import "github.com/sheikh-saqib/prediction-billing-service/internal/models"

// JobMessage is one batch waiting to be scored.
type JobMessage struct {
	JobID     string            `json:"job_id"`
	ModelName string            `json:"model_name"`
	Records   []models.Features `json:"records"`
}

// ResultMessage answers a JobMessage. Error is set instead of Answers on failure.
type ResultMessage struct {
	JobID   string `json:"job_id"`
	Answers []int  `json:"answers,omitempty"`
	Error   string `json:"error,omitempty"`
}
