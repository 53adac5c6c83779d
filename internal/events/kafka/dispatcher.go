package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/prediction-billing-service/internal/executor"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"go.uber.org/zap"
)

type DispatcherConfig struct {
	Brokers      []string
	JobsTopic    string
	ResultsTopic string
	// GroupID prefixes the per-instance consumer group for results. Every
	// API instance reads all results and keeps those it is waiting for.
	GroupID string
}

// Dispatcher sends jobs to the scoring workers over Kafka and routes their
// results back to the waiting handles.
type Dispatcher struct {
	writer    *kafka.Writer
	reader    *kafka.Reader
	jobsTopic string
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]*executor.Handle
}

func NewDispatcher(cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID + "-results-" + uuid.New().String(),
			Topic:       cfg.ResultsTopic,
			StartOffset: kafka.LastOffset,
		}),
		jobsTopic: cfg.JobsTopic,
		log:       log,
		pending:   make(map[string]*executor.Handle),
	}
}

func (d *Dispatcher) Submit(ctx context.Context, modelName string, records []models.Features) (*executor.Handle, error) {
	id := uuid.New().String()
	data, err := json.Marshal(JobMessage{JobID: id, ModelName: modelName, Records: records})
	if err != nil {
		return nil, err
	}

	h := executor.NewHandle(id, func() { d.forget(id) })
	d.mu.Lock()
	d.pending[id] = h
	d.mu.Unlock()

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Topic: d.jobsTopic,
		Key:   []byte(id),
		Value: data,
	})
	if err != nil {
		d.forget(id)
		return nil, fmt.Errorf("kafka: submit job %s: %w", id, err)
	}
	d.log.Debug("prediction job submitted", zap.String("job_id", id), zap.String("model", modelName))
	return h, nil
}

// Run consumes results until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		m, err := d.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka: read results: %w", err)
		}
		d.deliver(m.Value)
	}
}

func (d *Dispatcher) deliver(data []byte) {
	var res ResultMessage
	if err := json.Unmarshal(data, &res); err != nil {
		d.log.Error("malformed prediction result", zap.Error(err))
		return
	}

	d.mu.Lock()
	h, ok := d.pending[res.JobID]
	delete(d.pending, res.JobID)
	d.mu.Unlock()

	if !ok {
		d.log.Debug("prediction result not awaited here", zap.String("job_id", res.JobID))
		return
	}

	var err error
	if res.Error != "" {
		err = &executor.ExecutionError{Message: res.Error}
	}
	if !h.Resolve(res.Answers, err) {
		d.log.Warn("late prediction result discarded", zap.String("job_id", res.JobID))
	}
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// InFlight reports how many jobs are still waiting for a result.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) Close() error {
	return errors.Join(d.writer.Close(), d.reader.Close())
}

var _ executor.Executor = (*Dispatcher)(nil)
