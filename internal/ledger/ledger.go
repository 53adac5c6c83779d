package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
	ErrReservationClosed = errors.New("ledger: reservation already finalized or cancelled")
)

// Ledger holds user balances behind a per-user lock and tracks open reservations.
type Ledger struct {
	store interfaces.LedgerStore // balances and transactions, any storage implementation
	log   *zap.Logger

	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each user
	mapMu sync.Mutex             // protects muMap itself

	pendingMu sync.Mutex                    // protects pending
	pending   map[string]models.Reservation // open reservations by id

	now func() time.Time // clock for CreatedAt, replaceable in tests
}

// NewLedger creates a Ledger on top of store. A nil log discards output.
func NewLedger(store interfaces.LedgerStore, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		log:     log,
		muMap:   make(map[string]*sync.Mutex),
		pending: make(map[string]models.Reservation),
		now:     time.Now,
	}
}

// getUserLock returns the mutex serialising balance changes for one user,
// creating it on first use.
func (l *Ledger) getUserLock(userID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[userID]; !exists {
		l.muMap[userID] = &sync.Mutex{}
	}
	return l.muMap[userID]
}

// Reserve debits amount from the user's balance and returns a hold that must
// later be passed to exactly one of Finalize or Cancel. Amounts must be
// non-negative and carry at most models.MoneyScale decimal places.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount decimal.Decimal) (models.Reservation, error) {
	// Basic validation: never reserve a negative or unstorable amount
	if amount.IsNegative() || !models.ValidAmount(amount) {
		return models.Reservation{}, ErrInvalidAmount
	}

	// Serialise with other balance changes for this user
	mu := l.getUserLock(userID)
	mu.Lock()
	defer mu.Unlock()

	// The store debits only when the balance covers the amount.
	// A zero cost reserves nothing.
	if !amount.IsZero() {
		ok, err := l.store.Debit(ctx, userID, amount)
		if err != nil {
			return models.Reservation{}, fmt.Errorf("ledger: reserve: %w", err)
		}
		if !ok {
			return models.Reservation{}, ErrInsufficientFunds
		}
	}

	// Track the hold so exactly one Finalize or Cancel can close it
	res := models.Reservation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		CreatedAt: l.now(),
	}
	l.pendingMu.Lock()
	l.pending[res.ID] = res
	l.pendingMu.Unlock()

	l.log.Debug("funds reserved",
		zap.String("reservation_id", res.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()))
	return res, nil
}

// take removes an open reservation; only the first caller gets it.
func (l *Ledger) take(id string) (models.Reservation, bool) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()

	res, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	return res, ok
}

// restore reopens a reservation whose termination failed in the store.
func (l *Ledger) restore(res models.Reservation) {
	l.pendingMu.Lock()
	l.pending[res.ID] = res
	l.pendingMu.Unlock()
}

// Cancel refunds a reservation. A second Cancel, or a Cancel after Finalize,
// returns ErrReservationClosed and credits nothing.
func (l *Ledger) Cancel(ctx context.Context, reservation models.Reservation) error {
	// Claim the reservation first so a concurrent terminator sees it closed
	res, ok := l.take(reservation.ID)
	if !ok {
		return ErrReservationClosed
	}

	mu := l.getUserLock(res.UserID)
	mu.Lock()
	defer mu.Unlock()

	if !res.Amount.IsZero() {
		if err := l.store.Credit(ctx, res.UserID, res.Amount); err != nil {
			l.restore(res) // refund failed, leave it open for a retry
			return fmt.Errorf("ledger: cancel reservation %s: %w", res.ID, err)
		}
	}

	l.log.Debug("reservation cancelled",
		zap.String("reservation_id", res.ID),
		zap.String("user_id", res.UserID),
		zap.String("amount", res.Amount.String()))
	return nil
}

// Finalize records the reserved amount as a debit transaction. The balance was
// already reduced by Reserve and is not touched again. When the store fails the
// reservation stays open so the caller can still cancel it.
func (l *Ledger) Finalize(ctx context.Context, reservation models.Reservation) (models.Transaction, error) {
	res, ok := l.take(reservation.ID)
	if !ok {
		return models.Transaction{}, ErrReservationClosed
	}

	// Create the debit record:
	// - Amount: negative because money left the balance
	// - CreatedAt: time of settlement, not of the reservation
	tx := models.Transaction{
		UserID:    res.UserID,
		Type:      models.TransactionDebit,
		Amount:    res.Amount.Neg(),
		CreatedAt: l.now(),
	}
	if err := l.store.SaveTransaction(ctx, &tx); err != nil {
		l.restore(res)
		return models.Transaction{}, fmt.Errorf("ledger: finalize reservation %s: %w", res.ID, err)
	}

	l.log.Info("transaction finalized",
		zap.Int64("transaction_id", tx.ID),
		zap.String("reservation_id", res.ID),
		zap.String("user_id", res.UserID),
		zap.String("amount", tx.Amount.String()))
	return tx, nil
}

// Deposit credits the user's balance and records a deposit transaction.
// The amount must be positive and storable without rounding.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (models.Transaction, error) {
	// Basic validation: the deposit must be positive and exact
	if !amount.IsPositive() || !models.ValidAmount(amount) {
		return models.Transaction{}, ErrInvalidAmount
	}

	mu := l.getUserLock(userID)
	mu.Lock()
	defer mu.Unlock()

	tx := models.Transaction{
		UserID:    userID,
		Type:      models.TransactionDeposit,
		Amount:    amount,
		CreatedAt: l.now(),
	}
	// Credit and record happen atomically in the store
	if err := l.store.SaveDeposit(ctx, &tx); err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: deposit: %w", err)
	}
	return tx, nil
}

// Balance returns the user's spendable balance. Open reservations are
// already subtracted from it.
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return l.store.GetBalance(ctx, userID)
}

// Transactions returns the user's finalized debits and deposits in id order.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	return l.store.GetTransactions(ctx, userID)
}

// Pending reports how many reservations are still open.
func (l *Ledger) Pending() int {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	return len(l.pending)
}
