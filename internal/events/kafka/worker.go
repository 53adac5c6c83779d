package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/prediction-billing-service/internal/executor"
	"go.uber.org/zap"
)

type WorkerConfig struct {
	Brokers      []string
	JobsTopic    string
	ResultsTopic string
	GroupID      string
}

// Worker consumes prediction jobs, scores them and writes the results.
type Worker struct {
	reader       *kafka.Reader
	writer       *kafka.Writer
	resultsTopic string
	scorers      executor.ScorerSource
	log          *zap.Logger
}

func NewWorker(cfg WorkerConfig, scorers executor.ScorerSource, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   cfg.JobsTopic,
		}),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		resultsTopic: cfg.ResultsTopic,
		scorers:      scorers,
		log:          log,
	}
}

// Run processes jobs until ctx is cancelled. Offsets are committed only after
// the result has been written.
func (w *Worker) Run(ctx context.Context) error {
	for {
		m, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka: fetch job: %w", err)
		}

		res := w.Process(m.Value)
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if err := w.writer.WriteMessages(ctx, kafka.Message{
			Topic: w.resultsTopic,
			Key:   m.Key,
			Value: data,
		}); err != nil {
			return fmt.Errorf("kafka: write result %s: %w", res.JobID, err)
		}
		if err := w.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("kafka: commit job %s: %w", res.JobID, err)
		}
	}
}

// Process scores one encoded job. Failures become an error result, never a dropped job.
func (w *Worker) Process(data []byte) ResultMessage {
	var job JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error("malformed prediction job", zap.Error(err))
		return ResultMessage{JobID: job.JobID, Error: "malformed job: " + err.Error()}
	}

	answers, err := executor.Score(w.scorers, job.ModelName, job.Records)
	if err != nil {
		var execErr *executor.ExecutionError
		msg := err.Error()
		if errors.As(err, &execErr) {
			msg = execErr.Message
		}
		w.log.Warn("prediction job failed",
			zap.String("job_id", job.JobID),
			zap.String("model", job.ModelName),
			zap.String("error", msg))
		return ResultMessage{JobID: job.JobID, Error: msg}
	}

	w.log.Info("prediction job scored",
		zap.String("job_id", job.JobID),
		zap.String("model", job.ModelName),
		zap.Int("records", len(job.Records)))
	return ResultMessage{JobID: job.JobID, Answers: answers}
}

func (w *Worker) Close() error {
	return errors.Join(w.reader.Close(), w.writer.Close())
}
