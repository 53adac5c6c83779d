// Package storetest holds the behaviour every interfaces.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store returned by newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.Store) {
	t.Run("balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("deposit", func(t *testing.T) { testDeposit(t, newStore(t)) })
	t.Run("predictors", func(t *testing.T) { testPredictors(t, newStore(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("incremental batch", func(t *testing.T) { testIncrementalBatch(t, newStore(t)) })
	t.Run("save batch unknown predictor", func(t *testing.T) { testSaveBatchUnknownPredictor(t, newStore(t)) })
	t.Run("reports", func(t *testing.T) { testReports(t, newStore(t)) })
	t.Run("amount precision", func(t *testing.T) { testAmountPrecision(t, newStore(t)) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// Features returns a valid record; stage varies so rows are distinguishable.
func Features(stage int) models.Features {
	return models.Features{
		NDays: 1200, Drug: "D-penicillamine", Age: 21000, Sex: "M",
		Ascites: "N", Hepatomegaly: "Y", Spiders: "N", Edema: "N",
		Bilirubin: 1.4, Cholesterol: 260, Albumin: 3.4, Copper: 60,
		AlkPhos: 1500.5, SGOT: 110.25, Tryglicerides: 90, Platelets: 230,
		Prothrombin: 10.8, Stage: stage,
	}
}

func testBalances(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	b, err := s.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	ok, err := s.Debit(ctx, "nobody", dec("1"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Credit(ctx, "alice", dec("10.5")))
	ok, err = s.Debit(ctx, "alice", dec("4.25"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Debit(ctx, "alice", dec("6.26"))
	require.NoError(t, err)
	assert.False(t, ok, "debit beyond balance must be refused")

	b, err = s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assertDecimal(t, "6.25", b)
}

func testDeposit(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	tx := &models.Transaction{UserID: "bob", Type: models.TransactionDeposit, Amount: dec("20")}
	require.NoError(t, s.SaveDeposit(ctx, tx))
	assert.NotZero(t, tx.ID)

	debit := &models.Transaction{UserID: "bob", Type: models.TransactionDebit, Amount: dec("-3")}
	require.NoError(t, s.SaveTransaction(ctx, debit))
	assert.Greater(t, debit.ID, tx.ID)

	b, err := s.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assertDecimal(t, "20", b)

	txs, err := s.GetTransactions(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionDeposit, txs[0].Type)
	assertDecimal(t, "-3", txs[1].Amount)
}

func testPredictors(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	_, err := s.GetPredictor(ctx, "GradientBoosting")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreatePredictor(ctx, models.Predictor{Name: "GradientBoosting", Cost: dec("3")}))
	require.NoError(t, s.CreatePredictor(ctx, models.Predictor{Name: "Baseline", Cost: dec("0.75")}))
	err = s.CreatePredictor(ctx, models.Predictor{Name: "GradientBoosting", Cost: dec("9")})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	p, err := s.GetPredictor(ctx, "GradientBoosting")
	require.NoError(t, err)
	assertDecimal(t, "3", p.Cost)

	list, err := s.ListPredictors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Baseline", list[0].Name)
	assertDecimal(t, "0.75", list[0].Cost)
}

func testHistory(t *testing.T, s interfaces.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreatePredictor(ctx, models.Predictor{Name: "GradientBoosting", Cost: dec("3")}))

	empty, err := s.GetHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i, stages := range [][]int{{1, 2}, {3}, {4, 1, 2}} {
		tx := &models.Transaction{UserID: "alice", Type: models.TransactionDebit, Amount: dec("3").Mul(decimal.NewFromInt(int64(-len(stages))))}
		require.NoError(t, s.SaveTransaction(ctx, tx))

		batch := &models.PredictionBatch{
			UserID:        "alice",
			PredictorName: "GradientBoosting",
			TransactionID: tx.ID,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		for _, st := range stages {
			batch.Predictions = append(batch.Predictions, models.Prediction{Features: Features(st), Answer: st % 3})
		}
		require.NoError(t, s.SaveBatch(ctx, batch))
		assert.NotZero(t, batch.ID)
		for _, p := range batch.Predictions {
			assert.Equal(t, batch.ID, p.BatchID)
		}
		ids = append(ids, batch.ID)
	}

	other := &models.PredictionBatch{UserID: "bob", PredictorName: "GradientBoosting", Predictions: []models.Prediction{{Features: Features(1)}}}
	require.NoError(t, s.SaveBatch(ctx, other))

	history, err := s.GetHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{history[0].ID, history[1].ID, history[2].ID})

	newest := history[0]
	assert.Equal(t, "GradientBoosting", newest.ModelName)
	assertDecimal(t, "9", newest.Cost)
	assert.True(t, newest.Timestamp.Equal(base.Add(2*time.Minute)))
	require.Len(t, newest.Predictions, 3)
	for i, st := range []int{4, 1, 2} {
		assert.Equal(t, Features(st), newest.Predictions[i].Features)
		assert.Equal(t, st%3, newest.Predictions[i].Target.Answer)
	}

	bobs, err := s.GetHistory(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.True(t, bobs[0].Cost.IsZero(), "batch without a transaction costs nothing")
}

func testIncrementalBatch(t *testing.T, s interfaces.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreatePredictor(ctx, models.Predictor{Name: "GradientBoosting", Cost: dec("3")}))

	tx := &models.Transaction{UserID: "carol", Type: models.TransactionDebit, Amount: dec("-6")}
	require.NoError(t, s.SaveTransaction(ctx, tx))

	batch, err := s.CreateBatch(ctx, "carol", "GradientBoosting", tx.ID)
	require.NoError(t, err)
	for _, st := range []int{2, 3} {
		p, err := s.CreatePrediction(ctx, batch.ID, Features(st), st)
		require.NoError(t, err)
		assert.Equal(t, batch.ID, p.BatchID)
	}

	history, err := s.GetHistory(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertDecimal(t, "6", history[0].Cost)
	require.Len(t, history[0].Predictions, 2)
	assert.Equal(t, 3, history[0].Predictions[1].Target.Answer)
}

func testSaveBatchUnknownPredictor(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	batch := &models.PredictionBatch{
		UserID:        "dave",
		PredictorName: "Missing",
		Predictions:   []models.Prediction{{Features: Features(1)}},
	}
	require.Error(t, s.SaveBatch(ctx, batch))

	history, err := s.GetHistory(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func testReports(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	reports, err := s.Reports(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	for _, name := range []string{"A", "B"} {
		require.NoError(t, s.CreatePredictor(ctx, models.Predictor{Name: name, Cost: dec("1")}))
	}
	for _, name := range []string{"B", "A", "B"} {
		require.NoError(t, s.SaveBatch(ctx, &models.PredictionBatch{UserID: "erin", PredictorName: name}))
	}

	reports, err = s.Reports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.PredictionsReport{
		{ModelName: "A", TotalPredictionBatches: 1},
		{ModelName: "B", TotalPredictionBatches: 2},
	}, reports)
}

func testAmountPrecision(t *testing.T, s interfaces.Store) {
	ctx := context.Background()

	// Finer than 1e-4 or past the column range: refused, nothing written.
	for _, amount := range []string{"0.00004", "10000000000000000", "-0.00001"} {
		err := s.SaveDeposit(ctx, &models.Transaction{UserID: "alice", Type: models.TransactionDeposit, Amount: dec(amount)})
		assert.ErrorIs(t, err, storage.ErrInvalidAmount, amount)
		assert.ErrorIs(t, s.Credit(ctx, "alice", dec(amount)), storage.ErrInvalidAmount, amount)
	}
	_, err := s.Debit(ctx, "alice", dec("0.00001"))
	assert.ErrorIs(t, err, storage.ErrInvalidAmount)
	err = s.SaveTransaction(ctx, &models.Transaction{UserID: "alice", Type: models.TransactionDebit, Amount: dec("-1.00001")})
	assert.ErrorIs(t, err, storage.ErrInvalidAmount)
	err = s.CreatePredictor(ctx, models.Predictor{Name: "Fine", Cost: dec("0.12345")})
	assert.ErrorIs(t, err, storage.ErrInvalidAmount)

	b, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
	txs, err := s.GetTransactions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, txs)

	// Four decimals round-trip exactly, up to the largest storable value.
	for _, amount := range []string{"1234.5678", "99999999999999.9999"} {
		tx := &models.Transaction{UserID: "bob", Type: models.TransactionDeposit, Amount: dec(amount)}
		require.NoError(t, s.SaveDeposit(ctx, tx))
	}
	txs, err = s.GetTransactions(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assertDecimal(t, "1234.5678", txs[0].Amount)
	assertDecimal(t, "99999999999999.9999", txs[1].Amount)

	// The balance equals the sum of the recorded transactions.
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	b, err = s.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assertDecimal(t, sum.String(), b)
}
