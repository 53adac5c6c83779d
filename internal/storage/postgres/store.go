package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/shopspring/decimal"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// Open connects with the lib/pq driver and checks the connection.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Migrate creates the schema if it does not exist yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM balances WHERE user_id = $1`

	var balance decimal.Decimal
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Debit is a single conditional UPDATE, so two concurrent debits for the same
// user serialize on the row and the second one re-checks the new balance.
func (p *PostgresStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	const query = `UPDATE balances SET balance = balance - $1, updated_at = NOW()
	WHERE user_id = $2 AND balance >= $1`

	if err := storage.CheckAmount(amount); err != nil {
		return false, err
	}
	res, err := p.db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return credit(ctx, p.db, userID, amount)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func credit(ctx context.Context, db execer, userID string, amount decimal.Decimal) error {
	const query = `INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (user_id) DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()`

	if err := storage.CheckAmount(amount); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, query, userID, amount)
	return err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertTransaction(ctx context.Context, db queryRower, tx *models.Transaction) error {
	const query = `INSERT INTO transactions (user_id, type, amount, created_at)
	VALUES ($1, $2, $3, $4) RETURNING id`

	if err := storage.CheckAmount(tx.Amount); err != nil {
		return err
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return db.QueryRowContext(ctx, query, tx.UserID, tx.Type, tx.Amount, tx.CreatedAt).Scan(&tx.ID)
}

func (p *PostgresStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	return insertTransaction(ctx, p.db, tx)
}

func (p *PostgresStore) SaveDeposit(ctx context.Context, tx *models.Transaction) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
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

func (p *PostgresStore) GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	const query = `SELECT id, user_id, type, amount, created_at FROM transactions
	WHERE user_id = $1 ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreateBatch(ctx context.Context, userID, modelName string, transactionID int64) (*models.PredictionBatch, error) {
	batch := &models.PredictionBatch{
		UserID:        userID,
		PredictorName: modelName,
		TransactionID: transactionID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertBatch(ctx, p.db, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func insertBatch(ctx context.Context, db queryRower, batch *models.PredictionBatch) error {
	const query = `INSERT INTO prediction_batches (user_id, predictor_name, transaction_id, created_at)
	VALUES ($1, $2, $3, $4) RETURNING id`

	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	txID := sql.NullInt64{Int64: batch.TransactionID, Valid: batch.TransactionID != 0}
	return db.QueryRowContext(ctx, query, batch.UserID, batch.PredictorName, txID, batch.CreatedAt).
		Scan(&batch.ID)
}

var insertPredictionQuery = fmt.Sprintf(`INSERT INTO predictions (batch_id, %s, answer)
	VALUES (%s) RETURNING id`, storage.FeatureColumns, placeholders(storage.FeatureCount+2))

func insertPrediction(ctx context.Context, db queryRower, p *models.Prediction) error {
	args := make([]any, 0, storage.FeatureCount+2)
	args = append(args, p.BatchID)
	args = append(args, storage.FeatureArgs(p.Features)...)
	args = append(args, p.Answer)
	return db.QueryRowContext(ctx, insertPredictionQuery, args...).Scan(&p.ID)
}

func (p *PostgresStore) CreatePrediction(ctx context.Context, batchID int64, features models.Features, answer int) (*models.Prediction, error) {
	pred := &models.Prediction{BatchID: batchID, Features: features, Answer: answer}
	if err := insertPrediction(ctx, p.db, pred); err != nil {
		return nil, err
	}
	return pred, nil
}

func (p *PostgresStore) SaveBatch(ctx context.Context, batch *models.PredictionBatch) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
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

func (p *PostgresStore) GetHistory(ctx context.Context, userID string) ([]models.BatchInfo, error) {
	const query = `SELECT b.id, b.user_id, b.predictor_name, COALESCE(b.transaction_id, 0), b.created_at,
	COALESCE(ABS(t.amount), 0)
	FROM prediction_batches b LEFT JOIN transactions t ON t.id = b.transaction_id
	WHERE b.user_id = $1 ORDER BY b.created_at DESC, b.id DESC`

	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		batches []*models.PredictionBatch
		costs   []decimal.Decimal
		ids     []int64
		byID    = make(map[int64]*models.PredictionBatch)
	)
	for rows.Next() {
		var b models.PredictionBatch
		var cost decimal.Decimal
		if err := rows.Scan(&b.ID, &b.UserID, &b.PredictorName, &b.TransactionID, &b.CreatedAt, &cost); err != nil {
			return nil, err
		}
		batches = append(batches, &b)
		costs = append(costs, cost)
		ids = append(ids, b.ID)
		byID[b.ID] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return []models.BatchInfo{}, nil
	}

	predQuery := fmt.Sprintf(`SELECT id, batch_id, %s, answer FROM predictions
	WHERE batch_id = ANY($1) ORDER BY id`, storage.FeatureColumns)
	predRows, err := p.db.QueryContext(ctx, predQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer predRows.Close()

	for predRows.Next() {
		var pred models.Prediction
		dest := []any{&pred.ID, &pred.BatchID}
		dest = append(dest, storage.FeatureDest(&pred.Features)...)
		dest = append(dest, &pred.Answer)
		if err := predRows.Scan(dest...); err != nil {
			return nil, err
		}
		if b, ok := byID[pred.BatchID]; ok {
			b.Predictions = append(b.Predictions, pred)
		}
	}
	if err := predRows.Err(); err != nil {
		return nil, err
	}

	result := make([]models.BatchInfo, 0, len(batches))
	for i, b := range batches {
		result = append(result, b.Info(costs[i]))
	}
	return result, nil
}

func (p *PostgresStore) Reports(ctx context.Context) ([]models.PredictionsReport, error) {
	const query = `SELECT predictor_name, COUNT(*) FROM prediction_batches
	GROUP BY predictor_name ORDER BY predictor_name`

	rows, err := p.db.QueryContext(ctx, query)
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

func (p *PostgresStore) ListPredictors(ctx context.Context) ([]models.Predictor, error) {
	const query = `SELECT name, cost FROM predictors ORDER BY name`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Predictor{}
	for rows.Next() {
		var pr models.Predictor
		if err := rows.Scan(&pr.Name, &pr.Cost); err != nil {
			return nil, err
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetPredictor(ctx context.Context, name string) (models.Predictor, error) {
	const query = `SELECT name, cost FROM predictors WHERE name = $1`

	var pr models.Predictor
	err := p.db.QueryRowContext(ctx, query, name).Scan(&pr.Name, &pr.Cost)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Predictor{}, storage.ErrNotFound
	}
	return pr, err
}

// CreatePredictor relies on the primary key so concurrent seeders cannot duplicate a name.
func (p *PostgresStore) CreatePredictor(ctx context.Context, pr models.Predictor) error {
	const query = `INSERT INTO predictors (name, cost) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`

	if err := storage.CheckAmount(pr.Cost); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, query, pr.Name, pr.Cost)
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

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

var _ interfaces.Store = (*PostgresStore)(nil)
