// Package settlement charges for prediction batches: it reserves the price,
// runs the batch and then either finalizes the charge or refunds it.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/sheikh-saqib/prediction-billing-service/internal/executor"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

type Pricer interface {
	Cost(ctx context.Context, modelName string) (decimal.Decimal, error)
}

type Accounts interface {
	Reserve(ctx context.Context, userID string, amount decimal.Decimal) (models.Reservation, error)
	Cancel(ctx context.Context, res models.Reservation) error
	Finalize(ctx context.Context, res models.Reservation) (models.Transaction, error)
}

type Coordinator struct {
	pricer   Pricer
	accounts Accounts
	exec     executor.Executor
	store    interfaces.PredictionStore

	publisher interfaces.EventPublisher
	topic     string
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithPublisher sends settlement and refund events to topic.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(c *Coordinator) {
		c.publisher = p
		c.topic = topic
	}
}

func NewCoordinator(pricer Pricer, accounts Accounts, exec executor.Executor, store interfaces.PredictionStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		pricer:   pricer,
		accounts: accounts,
		exec:     exec,
		store:    store,
		timeout:  DefaultTimeout,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs one batch through reserve, dispatch, await and settle.
// Every failure after a successful reserve refunds the reservation exactly
// once before returning, except a failed batch write after the charge was
// finalized.
func (c *Coordinator) Process(ctx context.Context, userID, modelName string, records []models.Features) (models.BatchInfo, error) {
	if len(records) == 0 {
		return models.BatchInfo{}, ErrEmptyBatch
	}
	cost, err := c.pricer.Cost(ctx, modelName)
	if err != nil {
		return models.BatchInfo{}, err
	}
	total := cost.Mul(decimal.NewFromInt(int64(len(records))))

	log := c.log.With(zap.String("user_id", userID), zap.String("model", modelName))
	log.Debug("prediction requested", zap.Int("records", len(records)), zap.Any("features", records))

	res, err := c.accounts.Reserve(ctx, userID, total)
	if err != nil {
		return models.BatchInfo{}, err
	}
	log = log.With(zap.String("reservation_id", res.ID))

	// Once funds are held, refunds and settlement must not be cut short by the caller going away.
	settleCtx := context.WithoutCancel(ctx)

	handle, err := c.exec.Submit(ctx, modelName, records)
	if err != nil {
		c.compensate(settleCtx, log, res, modelName, err)
		return models.BatchInfo{}, &PredictionFailedError{Cause: err}
	}

	answers, err := handle.Await(ctx, c.timeout)
	if err == nil && len(answers) != len(records) {
		err = fmt.Errorf("settlement: got %d answers for %d records", len(answers), len(records))
	}
	if err != nil {
		c.compensate(settleCtx, log, res, modelName, err)
		return models.BatchInfo{}, &PredictionFailedError{Cause: err}
	}

	tx, err := c.accounts.Finalize(settleCtx, res)
	if err != nil {
		refunded := c.compensate(settleCtx, log, res, modelName, err)
		return models.BatchInfo{}, &PersistenceError{Stage: StageFinalize, Refunded: refunded, Err: err}
	}

	batch := &models.PredictionBatch{
		UserID:        userID,
		PredictorName: modelName,
		TransactionID: tx.ID,
		Predictions:   make([]models.Prediction, len(records)),
	}
	for i, rec := range records {
		batch.Predictions[i] = models.Prediction{Features: rec, Answer: answers[i]}
	}
	if err := c.store.SaveBatch(settleCtx, batch); err != nil {
		log.Error("charged batch could not be stored",
			zap.Int64("transaction_id", tx.ID),
			zap.String("amount", total.String()),
			zap.Error(err))
		return models.BatchInfo{}, &PersistenceError{Stage: StageBatch, TransactionID: tx.ID, Err: err}
	}

	log.Info("prediction batch settled",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("amount", total.String()))
	c.publish(settleCtx, events.BatchSettled{
		BatchID:       batch.ID,
		TransactionID: tx.ID,
		UserID:        userID,
		ModelName:     modelName,
		Predictions:   len(records),
		Amount:        total,
		OccurredAt:    c.now(),
	})
	return batch.Info(total), nil
}

// compensate refunds res and reports whether the refund went through.
func (c *Coordinator) compensate(ctx context.Context, log *zap.Logger, res models.Reservation, modelName string, cause error) bool {
	if err := c.accounts.Cancel(ctx, res); err != nil {
		log.Error("refund failed", zap.String("amount", res.Amount.String()), zap.NamedError("cause", cause), zap.Error(err))
		return false
	}
	log.Warn("prediction batch refunded", zap.String("amount", res.Amount.String()), zap.Error(cause))
	c.publish(ctx, events.ReservationRefunded{
		ReservationID: res.ID,
		UserID:        res.UserID,
		ModelName:     modelName,
		Amount:        res.Amount,
		Reason:        cause.Error(),
		OccurredAt:    c.now(),
	})
	return true
}

func (c *Coordinator) publish(ctx context.Context, event any) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, c.topic, event); err != nil {
		c.log.Warn("event not published", zap.String("topic", c.topic), zap.Error(err))
	}
}
