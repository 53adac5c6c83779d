package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(balance string) (*Ledger, *memory.MemoryStore) {
	store := memory.NewMemoryStore()
	store.SetBalance("alice", dec(balance))
	return NewLedger(store, nil), store
}

func balanceOf(t *testing.T, l *Ledger) decimal.Decimal {
	t.Helper()
	b, err := l.Balance(context.Background(), "alice")
	require.NoError(t, err)
	return b
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name        string
		balance     string
		amount      string
		wantErr     error
		wantBalance string
	}{
		{"covered", "10", "6", nil, "4"},
		{"exact", "6", "6", nil, "0"},
		{"insufficient", "5", "6", ErrInsufficientFunds, "5"},
		{"zero", "0", "0", nil, "0"},
		{"negative", "10", "-1", ErrInvalidAmount, "10"},
		{"finer than storage", "10", "0.00001", ErrInvalidAmount, "10"},
		{"four decimals", "10", "0.0001", nil, "9.9999"},
		{"too large", "1e15", "1e14", ErrInvalidAmount, "1e15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newLedger(tt.balance)

			res, err := l.Reserve(context.Background(), "alice", dec(tt.amount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, l.Pending())
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, res.ID)
				assert.Equal(t, 1, l.Pending())
			}
			assert.True(t, dec(tt.wantBalance).Equal(balanceOf(t, l)))
		})
	}
}

func TestCancelIsExactlyOnce(t *testing.T) {
	l, _ := newLedger("10")
	res, err := l.Reserve(context.Background(), "alice", dec("4"))
	require.NoError(t, err)

	require.NoError(t, l.Cancel(context.Background(), res))
	assert.ErrorIs(t, l.Cancel(context.Background(), res), ErrReservationClosed)
	_, err = l.Finalize(context.Background(), res)
	assert.ErrorIs(t, err, ErrReservationClosed)

	assert.True(t, dec("10").Equal(balanceOf(t, l)))
	assert.Zero(t, l.Pending())
}

func TestFinalizeRecordsDebit(t *testing.T) {
	l, _ := newLedger("10")
	res, err := l.Reserve(context.Background(), "alice", dec("2.5"))
	require.NoError(t, err)

	tx, err := l.Finalize(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionDebit, tx.Type)
	assert.True(t, dec("-2.5").Equal(tx.Amount))
	assert.NotZero(t, tx.ID)

	assert.ErrorIs(t, l.Cancel(context.Background(), res), ErrReservationClosed)
	assert.True(t, dec("7.5").Equal(balanceOf(t, l)))

	txs, err := l.Transactions(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

type failingTxStore struct {
	*memory.MemoryStore
}

func (failingTxStore) SaveTransaction(context.Context, *models.Transaction) error {
	return errors.New("write failed")
}

func TestFinalizeFailureKeepsReservationOpen(t *testing.T) {
	store := failingTxStore{memory.NewMemoryStore()}
	store.SetBalance("alice", dec("10"))
	l := NewLedger(store, nil)

	res, err := l.Reserve(context.Background(), "alice", dec("3"))
	require.NoError(t, err)

	_, err = l.Finalize(context.Background(), res)
	require.Error(t, err)
	assert.Equal(t, 1, l.Pending())

	require.NoError(t, l.Cancel(context.Background(), res))
	assert.True(t, dec("10").Equal(balanceOf(t, l)))
}

func TestConcurrentReserveNeverOverdraws(t *testing.T) {
	l, _ := newLedger("10")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(context.Background(), "alice", dec("1")); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.True(t, balanceOf(t, l).IsZero())
}

func TestDeposit(t *testing.T) {
	l, _ := newLedger("0")

	tx, err := l.Deposit(context.Background(), "alice", dec("12.75"))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionDeposit, tx.Type)
	assert.True(t, dec("12.75").Equal(balanceOf(t, l)))

	_, err = l.Deposit(context.Background(), "alice", dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDepositRejectsUnstorableAmounts(t *testing.T) {
	for _, amount := range []string{"0.00004", "10000000000000000", "1.23456"} {
		t.Run(amount, func(t *testing.T) {
			l, _ := newLedger("5")

			_, err := l.Deposit(context.Background(), "alice", dec(amount))
			require.ErrorIs(t, err, ErrInvalidAmount)

			assert.True(t, dec("5").Equal(balanceOf(t, l)))
			txs, err := l.Transactions(context.Background(), "alice")
			require.NoError(t, err)
			assert.Empty(t, txs)
		})
	}
}

func TestDepositKeepsFourDecimals(t *testing.T) {
	l, _ := newLedger("0")

	tx, err := l.Deposit(context.Background(), "alice", dec("99999999999999.9999"))
	require.NoError(t, err)
	assert.Equal(t, "99999999999999.9999", tx.Amount.String())
	assert.True(t, tx.Amount.Equal(balanceOf(t, l)))
}
