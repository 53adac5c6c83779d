package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/prediction-billing-service/internal/catalog"
	"github.com/sheikh-saqib/prediction-billing-service/internal/executor"
	"github.com/sheikh-saqib/prediction-billing-service/internal/ledger"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models/events"
	"github.com/sheikh-saqib/prediction-billing-service/internal/scoring"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const model = "GradientBoosting"

// stageScorer answers with the record's stage.
type stageScorer struct{}

func (stageScorer) Predict(f models.Features) (int, error) { return f.Stage, nil }

// flakyStore fails selected writes and otherwise behaves like the memory store.
type flakyStore struct {
	*memory.MemoryStore
	saveTxErr    error
	saveBatchErr error
}

func (s *flakyStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if s.saveTxErr != nil {
		return s.saveTxErr
	}
	return s.MemoryStore.SaveTransaction(ctx, tx)
}

func (s *flakyStore) SaveBatch(ctx context.Context, b *models.PredictionBatch) error {
	if s.saveBatchErr != nil {
		return s.saveBatchErr
	}
	return s.MemoryStore.SaveBatch(ctx, b)
}

// stubExecutor resolves, fails or never answers depending on its fields.
type stubExecutor struct {
	submitErr error
	hang      bool
	answers   func(records []models.Features) ([]int, error)

	mu        sync.Mutex
	submitted int
}

func (e *stubExecutor) Submit(_ context.Context, _ string, records []models.Features) (*executor.Handle, error) {
	e.mu.Lock()
	e.submitted++
	e.mu.Unlock()
	if e.submitErr != nil {
		return nil, e.submitErr
	}
	h := executor.NewHandle("stub", nil)
	if !e.hang {
		h.Resolve(e.answers(records))
	}
	return h, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	store  *flakyStore
	ledger *ledger.Ledger
	cat    *catalog.Catalog
	pub    *recordingPublisher
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	store := &flakyStore{MemoryStore: memory.NewMemoryStore()}
	store.SetBalance("alice", decimal.RequireFromString(balance))

	cat, err := catalog.New(store, catalog.Manifest{Models: []catalog.ModelEntry{{Name: model, Cost: "3"}}}, 4,
		catalog.WithLoader(func(catalog.ModelEntry) (scoring.Scorer, error) { return stageScorer{}, nil }))
	require.NoError(t, err)
	_, err = cat.EnsureSeeded(context.Background())
	require.NoError(t, err)

	return &fixture{
		store:  store,
		ledger: ledger.NewLedger(store, nil),
		cat:    cat,
		pub:    &recordingPublisher{},
	}
}

func (f *fixture) coordinator(exec executor.Executor) *Coordinator {
	return NewCoordinator(f.cat, f.ledger, exec, f.store,
		WithTimeout(50*time.Millisecond),
		WithPublisher(f.pub, "prediction_events"))
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), "alice")
	require.NoError(t, err)
	return b
}

func (f *fixture) transactions(t *testing.T) []models.Transaction {
	t.Helper()
	txs, err := f.ledger.Transactions(context.Background(), "alice")
	require.NoError(t, err)
	return txs
}

func records(stages ...int) []models.Features {
	out := make([]models.Features, len(stages))
	for i, s := range stages {
		out[i] = models.Features{Stage: s}
	}
	return out
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, "10")
	c := f.coordinator(executor.NewInline(f.cat))

	info, err := c.Process(context.Background(), "alice", model, records(2, 4))
	require.NoError(t, err)

	assert.Equal(t, model, info.ModelName)
	assertDecimal(t, "6", info.Cost)
	require.Len(t, info.Predictions, 2)
	assert.Equal(t, 2, info.Predictions[0].Target.Answer)
	assert.Equal(t, 4, info.Predictions[1].Target.Answer)

	assertDecimal(t, "4", f.balance(t))
	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assertDecimal(t, "-6", txs[0].Amount)
	assert.Zero(t, f.ledger.Pending())

	history, err := f.store.GetHistory(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, info.ID, history[0].ID)
	assertDecimal(t, "6", history[0].Cost)

	require.Len(t, f.pub.events, 1)
	settled, ok := f.pub.events[0].(events.BatchSettled)
	require.True(t, ok)
	assert.Equal(t, txs[0].ID, settled.TransactionID)
}

func TestProcessPreservesOrder(t *testing.T) {
	f := newFixture(t, "100")
	c := f.coordinator(executor.NewInline(f.cat))

	in := records(4, 1, 3, 1, 2, 4, 2)
	info, err := c.Process(context.Background(), "alice", model, in)
	require.NoError(t, err)
	for i, p := range info.Predictions {
		assert.Equal(t, in[i], p.Features)
		assert.Equal(t, in[i].Stage, p.Target.Answer)
	}
}

func TestProcessReadsCurrentPrice(t *testing.T) {
	f := newFixture(t, "10")
	c := f.coordinator(executor.NewInline(f.cat))

	f.store.SetPredictorCost(model, decimal.RequireFromString("1.5"))
	info, err := c.Process(context.Background(), "alice", model, records(1))
	require.NoError(t, err)
	assertDecimal(t, "1.5", info.Cost)
	assertDecimal(t, "8.5", f.balance(t))
}

func TestProcessFailuresLeaveBalanceUntouched(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		balance  string
		model    string
		records  []models.Features
		exec     *stubExecutor
		wantIs   error
		wantFail bool
		submits  int
	}{
		{
			name:    "empty batch",
			balance: "10", model: model, records: nil,
			exec:   &stubExecutor{},
			wantIs: ErrEmptyBatch,
		},
		{
			name:    "unknown model",
			balance: "10", model: "Nope", records: records(1),
			exec:   &stubExecutor{},
			wantIs: catalog.ErrUnknownModel,
		},
		{
			name:    "insufficient funds",
			balance: "5", model: model, records: records(1, 2),
			exec:   &stubExecutor{},
			wantIs: ledger.ErrInsufficientFunds,
		},
		{
			name:    "submit fails",
			balance: "10", model: model, records: records(1),
			exec:     &stubExecutor{submitErr: errBoom},
			wantIs:   errBoom,
			wantFail: true,
			submits:  1,
		},
		{
			name:    "worker times out",
			balance: "10", model: model, records: records(1, 2),
			exec:     &stubExecutor{hang: true},
			wantIs:   executor.ErrTimeout,
			wantFail: true,
			submits:  1,
		},
		{
			name:    "worker raises",
			balance: "10", model: model, records: records(1),
			exec: &stubExecutor{answers: func([]models.Features) ([]int, error) {
				return nil, &executor.ExecutionError{Message: "model crashed"}
			}},
			wantFail: true,
			submits:  1,
		},
		{
			name:    "wrong answer count",
			balance: "10", model: model, records: records(1, 2),
			exec: &stubExecutor{answers: func([]models.Features) ([]int, error) {
				return []int{1}, nil
			}},
			wantFail: true,
			submits:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.balance)
			c := f.coordinator(tt.exec)

			_, err := c.Process(context.Background(), "alice", tt.model, tt.records)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			var failed *PredictionFailedError
			assert.Equal(t, tt.wantFail, errors.As(err, &failed))

			assertDecimal(t, tt.balance, f.balance(t))
			assert.Empty(t, f.transactions(t))
			assert.Zero(t, f.ledger.Pending())
			assert.Equal(t, tt.submits, tt.exec.submitted)

			history, err := f.store.GetHistory(context.Background(), "alice")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestProcessTimeoutPublishesRefund(t *testing.T) {
	f := newFixture(t, "10")
	c := f.coordinator(&stubExecutor{hang: true})

	_, err := c.Process(context.Background(), "alice", model, records(1))
	require.ErrorIs(t, err, executor.ErrTimeout)

	require.Len(t, f.pub.events, 1)
	refund, ok := f.pub.events[0].(events.ReservationRefunded)
	require.True(t, ok)
	assertDecimal(t, "3", refund.Amount)
	assert.Contains(t, refund.Reason, "timed out")
}

func TestProcessFinalizeFailureRefunds(t *testing.T) {
	f := newFixture(t, "10")
	f.store.saveTxErr = errors.New("disk full")
	c := f.coordinator(executor.NewInline(f.cat))

	_, err := c.Process(context.Background(), "alice", model, records(1, 2))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageFinalize, perr.Stage)
	assert.True(t, perr.Refunded)
	assertDecimal(t, "10", f.balance(t))
	assert.Zero(t, f.ledger.Pending())
	assert.Empty(t, f.transactions(t))
}

func TestProcessBatchWriteFailureKeepsCharge(t *testing.T) {
	f := newFixture(t, "10")
	f.store.saveBatchErr = errors.New("constraint violation")
	c := f.coordinator(executor.NewInline(f.cat))

	_, err := c.Process(context.Background(), "alice", model, records(1))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageBatch, perr.Stage)
	assert.False(t, perr.Refunded)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, txs[0].ID, perr.TransactionID)
	assertDecimal(t, "7", f.balance(t))
}

func TestProcessPreventsDoubleSpend(t *testing.T) {
	f := newFixture(t, "3")
	c := f.coordinator(executor.NewInline(f.cat))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Process(context.Background(), "alice", model, records(1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, rejected)
	assertDecimal(t, "0", f.balance(t))
}

func TestProcessConservesMoney(t *testing.T) {
	f := newFixture(t, "60")
	ok := executor.NewInline(f.cat)
	failing := &stubExecutor{answers: func([]models.Features) ([]int, error) {
		return nil, &executor.ExecutionError{Message: "crash"}
	}}
	good, bad := f.coordinator(ok), f.coordinator(failing)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := good
			if n%3 == 0 {
				c = bad
			}
			_, _ = c.Process(context.Background(), "alice", model, records(1, 2))
		}(i)
	}
	wg.Wait()

	spent := decimal.Zero
	for _, tx := range f.transactions(t) {
		spent = spent.Add(tx.Amount.Abs())
	}
	assert.True(t, decimal.RequireFromString("60").Sub(spent).Equal(f.balance(t)))
	assert.Zero(t, f.ledger.Pending())

	history, err := f.store.GetHistory(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, history, len(f.transactions(t)))
}

func TestScenarios(t *testing.T) {
	five := records(1, 2, 3, 4, 1)

	t.Run("five records charged fifteen", func(t *testing.T) {
		f := newFixture(t, "100")
		info, err := f.coordinator(executor.NewInline(f.cat)).Process(context.Background(), "alice", model, five)
		require.NoError(t, err)
		assert.Len(t, info.Predictions, 5)
		assertDecimal(t, "85", f.balance(t))
		txs := f.transactions(t)
		require.Len(t, txs, 1)
		assertDecimal(t, "15", txs[0].Amount.Abs())
	})

	t.Run("balance ten cannot cover fifteen", func(t *testing.T) {
		f := newFixture(t, "10")
		_, err := f.coordinator(executor.NewInline(f.cat)).Process(context.Background(), "alice", model, five)
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assertDecimal(t, "10", f.balance(t))
		history, err := f.store.GetHistory(context.Background(), "alice")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("worker misses the deadline", func(t *testing.T) {
		f := newFixture(t, "100")
		_, err := f.coordinator(&stubExecutor{hang: true}).Process(context.Background(), "alice", model, five)
		var failed *PredictionFailedError
		require.ErrorAs(t, err, &failed)
		assertDecimal(t, "100", f.balance(t))
		assert.Empty(t, f.transactions(t))
	})

	t.Run("caller disconnects while waiting", func(t *testing.T) {
		f := newFixture(t, "100")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := f.coordinator(&stubExecutor{hang: true}).Process(ctx, "alice", model, five)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assertDecimal(t, "100", f.balance(t))
		assert.Zero(t, f.ledger.Pending())
	})
}
