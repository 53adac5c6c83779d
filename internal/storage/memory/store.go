package memory

import (
	"context" // request-scoped context, unused by the in-memory store
	"sort"    // ordering for history, reports and catalog listings
	"sync"    // one Mutex guards all state
	"time"

	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory implementation of interfaces.Store.
// All state sits behind one mutex so every method is safe for concurrent use.
type MemoryStore struct {
	mu           sync.Mutex
	balances     map[string]decimal.Decimal  // user id -> spendable balance
	transactions []models.Transaction        // append-only, in id order
	batches      []*models.PredictionBatch   // in id order
	predictors   map[string]models.Predictor // name -> catalog entry
	nextTxID     int64                       // last assigned transaction id
	nextBatchID  int64                       // last assigned batch id
	nextPredID   int64                       // last assigned prediction id
	now          func() time.Time            // clock for created_at, replaceable in tests
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:   make(map[string]decimal.Decimal),
		predictors: make(map[string]models.Predictor),
		now:        time.Now,
	}
}

// SetBalance overwrites a user's balance. Used to seed accounts.
func (m *MemoryStore) SetBalance(userID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
}

// GetBalance returns the user's balance, zero for an unknown user.
func (m *MemoryStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()                    // lock so a concurrent Debit can't be observed half-way
	defer m.mu.Unlock()            // unlock automatically when function exits
	return m.balances[userID], nil // missing key yields decimal zero
}

// Debit subtracts amount only when the balance covers it.
func (m *MemoryStore) Debit(_ context.Context, userID string, amount decimal.Decimal) (bool, error) {
	if err := storage.CheckAmount(amount); err != nil {
		return false, err // same precision limits as the SQL stores
	}

	m.mu.Lock()         // check and subtract under one lock
	defer m.mu.Unlock() // unlock automatically when function exits

	balance := m.balances[userID]
	if balance.LessThan(amount) {
		return false, nil // not enough funds, balance untouched
	}
	m.balances[userID] = balance.Sub(amount)
	return true, nil
}

// Credit adds amount to the balance, creating the account if needed.
func (m *MemoryStore) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	if err := storage.CheckAmount(amount); err != nil {
		return err
	}

	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits
	m.balances[userID] = m.balances[userID].Add(amount)
	return nil
}

// SaveTransaction assigns the next id and appends the record.
func (m *MemoryStore) SaveTransaction(_ context.Context, tx *models.Transaction) error {
	if err := storage.CheckAmount(tx.Amount); err != nil {
		return err
	}

	m.mu.Lock()             // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock()     // unlock automatically when function exits
	m.appendTransaction(tx) // fills tx.ID and tx.CreatedAt for the caller
	return nil
}

// SaveDeposit credits the balance and records the deposit under one lock.
func (m *MemoryStore) SaveDeposit(_ context.Context, tx *models.Transaction) error {
	if err := storage.CheckAmount(tx.Amount); err != nil {
		return err // nothing credited, nothing recorded
	}

	m.mu.Lock()         // balance and record change together
	defer m.mu.Unlock() // unlock automatically when function exits
	m.balances[tx.UserID] = m.balances[tx.UserID].Add(tx.Amount)
	m.appendTransaction(tx)
	return nil
}

// appendTransaction must be called with m.mu held.
func (m *MemoryStore) appendTransaction(tx *models.Transaction) {
	m.nextTxID++
	tx.ID = m.nextTxID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now()
	}
	m.transactions = append(m.transactions, *tx) // store a copy
}

// GetTransactions returns the user's transactions in id order.
func (m *MemoryStore) GetTransactions(_ context.Context, userID string) ([]models.Transaction, error) {
	m.mu.Lock()         // lock to prevent concurrent modification while reading
	defer m.mu.Unlock() // unlock automatically at the end

	var result []models.Transaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			result = append(result, tx)
		}
	}
	return result, nil
}

// CreateBatch opens an empty batch for a known predictor.
func (m *MemoryStore) CreateBatch(_ context.Context, userID, modelName string, transactionID int64) (*models.PredictionBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.predictors[modelName]; !ok {
		return nil, storage.ErrNotFound // same as the foreign key in SQL
	}
	m.nextBatchID++
	batch := &models.PredictionBatch{
		ID:            m.nextBatchID,
		UserID:        userID,
		PredictorName: modelName,
		TransactionID: transactionID,
		CreatedAt:     m.now(),
	}
	m.batches = append(m.batches, batch)
	return copyBatch(batch), nil // the caller gets its own copy
}

// CreatePrediction appends one prediction to an existing batch.
func (m *MemoryStore) CreatePrediction(_ context.Context, batchID int64, features models.Features, answer int) (*models.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := m.findBatch(batchID)
	if batch == nil {
		return nil, storage.ErrNotFound
	}
	m.nextPredID++
	p := models.Prediction{ID: m.nextPredID, BatchID: batchID, Features: features, Answer: answer}
	batch.Predictions = append(batch.Predictions, p)
	return &p, nil
}

// SaveBatch stores the batch and its predictions in one step, assigning ids.
func (m *MemoryStore) SaveBatch(_ context.Context, batch *models.PredictionBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.predictors[batch.PredictorName]; !ok {
		return storage.ErrNotFound
	}
	m.nextBatchID++
	batch.ID = m.nextBatchID
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = m.now()
	}
	for i := range batch.Predictions {
		m.nextPredID++
		batch.Predictions[i].ID = m.nextPredID
		batch.Predictions[i].BatchID = batch.ID
	}
	m.batches = append(m.batches, copyBatch(batch))
	return nil
}

// GetHistory returns the user's batches newest first; equal timestamps fall back to id.
func (m *MemoryStore) GetHistory(_ context.Context, userID string) ([]models.BatchInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []*models.PredictionBatch
	for _, b := range m.batches {
		if b.UserID == userID {
			owned = append(owned, b)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	result := make([]models.BatchInfo, 0, len(owned))
	for _, b := range owned {
		result = append(result, b.Info(m.transactionCost(b.TransactionID)))
	}
	return result, nil
}

// transactionCost must be called with m.mu held.
func (m *MemoryStore) transactionCost(id int64) decimal.Decimal {
	for _, tx := range m.transactions {
		if tx.ID == id {
			return tx.Amount.Abs() // debits are stored negative
		}
	}
	return decimal.Zero
}

// Reports counts batches per predictor, sorted by name.
func (m *MemoryStore) Reports(_ context.Context) ([]models.PredictionsReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int64)
	for _, b := range m.batches {
		counts[b.PredictorName]++
	}
	reports := make([]models.PredictionsReport, 0, len(counts))
	for name, n := range counts {
		reports = append(reports, models.PredictionsReport{ModelName: name, TotalPredictionBatches: n})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ModelName < reports[j].ModelName })
	return reports, nil
}

// ListPredictors returns the catalog sorted by name.
func (m *MemoryStore) ListPredictors(_ context.Context) ([]models.Predictor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.Predictor, 0, len(m.predictors))
	for _, p := range m.predictors {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStore) GetPredictor(_ context.Context, name string) (models.Predictor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.predictors[name]
	if !ok {
		return models.Predictor{}, storage.ErrNotFound
	}
	return p, nil
}

// CreatePredictor adds a catalog entry; an existing name is left as is.
func (m *MemoryStore) CreatePredictor(_ context.Context, p models.Predictor) error {
	if err := storage.CheckAmount(p.Cost); err != nil {
		return err
	}

	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits

	if _, exists := m.predictors[p.Name]; exists {
		return storage.ErrAlreadyExists
	}
	m.predictors[p.Name] = p
	return nil
}

// SetPredictorCost changes the price of an existing entry.
func (m *MemoryStore) SetPredictorCost(name string, cost decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictors[name] = models.Predictor{Name: name, Cost: cost}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// findBatch must be called with m.mu held.
func (m *MemoryStore) findBatch(id int64) *models.PredictionBatch {
	for _, b := range m.batches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// copyBatch returns a copy so callers can't modify internal state.
func copyBatch(b *models.PredictionBatch) *models.PredictionBatch {
	c := *b
	c.Predictions = append([]models.Prediction(nil), b.Predictions...)
	return &c
}

// Compile-time check: ensure MemoryStore implements the Store interface
var _ interfaces.Store = (*MemoryStore)(nil)
