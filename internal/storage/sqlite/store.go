// Package sqlite is a single-file store for local runs and tests.
// Money is kept as integer units of 1/10000 so balance checks stay exact in SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/shopspring/decimal"
)

const moneyScale = 4

type SQLiteStore struct {
	db *sql.DB
}

// Open opens path (":memory:" works) and creates the schema.
// One connection is used so that writers never race on the file lock.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// toUnits scales d to integer units. Amounts that would need rounding or
// would not fit an int64 are refused.
func toUnits(d decimal.Decimal) (int64, error) {
	if err := storage.CheckAmount(d); err != nil {
		return 0, err
	}
	return d.Shift(moneyScale).IntPart(), nil
}

func fromUnits(v int64) decimal.Decimal {
	return decimal.New(v, -moneyScale)
}

func (s *SQLiteStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var units int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&units)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return fromUnits(units), nil
}

func (s *SQLiteStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	units, err := toUnits(amount)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE balances SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND balance >= ?`,
		units, userID, units)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func credit(ctx context.Context, db execer, userID string, amount decimal.Decimal) error {
	units, err := toUnits(amount)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO balances (user_id, balance, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = CURRENT_TIMESTAMP`,
		userID, units)
	return err
}

func (s *SQLiteStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return credit(ctx, s.db, userID, amount)
}

func insertTransaction(ctx context.Context, db execer, tx *models.Transaction) error {
	units, err := toUnits(tx.Amount)
	if err != nil {
		return err
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, created_at) VALUES (?, ?, ?, ?)`,
		tx.UserID, string(tx.Type), units, tx.CreatedAt)
	if err != nil {
		return err
	}
	tx.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	return insertTransaction(ctx, s.db, tx)
}

func (s *SQLiteStore) SaveDeposit(ctx context.Context, tx *models.Transaction) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = credit(ctx, dbTx, tx.UserID, tx.Amount); err != nil {
		return err
	}
	if err = insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *SQLiteStore) GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, created_at FROM transactions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		var (
			tx    models.Transaction
			kind  string
			units int64
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &kind, &units, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = models.TransactionType(kind)
		tx.Amount = fromUnits(units)
		result = append(result, tx)
	}
	return result, rows.Err()
}

func insertBatch(ctx context.Context, db execer, batch *models.PredictionBatch) error {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	txID := sql.NullInt64{Int64: batch.TransactionID, Valid: batch.TransactionID != 0}
	res, err := db.ExecContext(ctx,
		`INSERT INTO prediction_batches (user_id, predictor_name, transaction_id, created_at) VALUES (?, ?, ?, ?)`,
		batch.UserID, batch.PredictorName, txID, batch.CreatedAt)
	if err != nil {
		return err
	}
	batch.ID, err = res.LastInsertId()
	return err
}

var insertPredictionQuery = fmt.Sprintf(`INSERT INTO predictions (batch_id, %s, answer) VALUES (%s)`,
	storage.FeatureColumns, strings.TrimSuffix(strings.Repeat("?, ", storage.FeatureCount+2), ", "))

func insertPrediction(ctx context.Context, db execer, p *models.Prediction) error {
	args := make([]any, 0, storage.FeatureCount+2)
	args = append(args, p.BatchID)
	args = append(args, storage.FeatureArgs(p.Features)...)
	args = append(args, p.Answer)
	res, err := db.ExecContext(ctx, insertPredictionQuery, args...)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, userID, modelName string, transactionID int64) (*models.PredictionBatch, error) {
	batch := &models.PredictionBatch{UserID: userID, PredictorName: modelName, TransactionID: transactionID}
	if err := insertBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *SQLiteStore) CreatePrediction(ctx context.Context, batchID int64, features models.Features, answer int) (*models.Prediction, error) {
	p := &models.Prediction{BatchID: batchID, Features: features, Answer: answer}
	if err := insertPrediction(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *models.PredictionBatch) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = insertBatch(ctx, dbTx, batch); err != nil {
		return err
	}
	for i := range batch.Predictions {
		batch.Predictions[i].BatchID = batch.ID
		if err = insertPrediction(ctx, dbTx, &batch.Predictions[i]); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// GetHistory reads batches first and predictions second; the single
// connection cannot serve two open result sets at once.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string) ([]models.BatchInfo, error) {
	batches, costs, err := s.historyBatches(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]models.BatchInfo, 0, len(batches))
	for i, b := range batches {
		preds, err := s.batchPredictions(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Predictions = preds
		result = append(result, b.Info(costs[i]))
	}
	return result, nil
}

func (s *SQLiteStore) historyBatches(ctx context.Context, userID string) ([]*models.PredictionBatch, []decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.predictor_name, COALESCE(b.transaction_id, 0), b.created_at, COALESCE(ABS(t.amount), 0)
		FROM prediction_batches b LEFT JOIN transactions t ON t.id = b.transaction_id
		WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id DESC`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		batches []*models.PredictionBatch
		costs   []decimal.Decimal
	)
	for rows.Next() {
		var (
			b     models.PredictionBatch
			units int64
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.PredictorName, &b.TransactionID, &b.CreatedAt, &units); err != nil {
			return nil, nil, err
		}
		batches = append(batches, &b)
		costs = append(costs, fromUnits(units))
	}
	return batches, costs, rows.Err()
}

func (s *SQLiteStore) batchPredictions(ctx context.Context, batchID int64) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, batch_id, %s, answer FROM predictions WHERE batch_id = ? ORDER BY id`, storage.FeatureColumns),
		batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Prediction
	for rows.Next() {
		var p models.Prediction
		dest := []any{&p.ID, &p.BatchID}
		dest = append(dest, storage.FeatureDest(&p.Features)...)
		dest = append(dest, &p.Answer)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Reports(ctx context.Context) ([]models.PredictionsReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT predictor_name, COUNT(*) FROM prediction_batches GROUP BY predictor_name ORDER BY predictor_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []models.PredictionsReport{}
	for rows.Next() {
		var r models.PredictionsReport
		if err := rows.Scan(&r.ModelName, &r.TotalPredictionBatches); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) ListPredictors(ctx context.Context) ([]models.Predictor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, cost FROM predictors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Predictor{}
	for rows.Next() {
		var (
			p     models.Predictor
			units int64
		)
		if err := rows.Scan(&p.Name, &units); err != nil {
			return nil, err
		}
		p.Cost = fromUnits(units)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetPredictor(ctx context.Context, name string) (models.Predictor, error) {
	var units int64
	err := s.db.QueryRowContext(ctx, `SELECT cost FROM predictors WHERE name = ?`, name).Scan(&units)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Predictor{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Predictor{}, err
	}
	return models.Predictor{Name: name, Cost: fromUnits(units)}, nil
}

func (s *SQLiteStore) CreatePredictor(ctx context.Context, p models.Predictor) error {
	cost, err := toUnits(p.Cost)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO predictors (name, cost) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`, p.Name, cost)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ interfaces.Store = (*SQLiteStore)(nil)
