package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"sentra.org/internal/ids"
)

// Service defines ledger operations. Balances exist implicitly: any user
// starts at zero and deposits create the row.
type Service interface {
	Deposit(ctx context.Context, toUser string, amount int64, note string) (Transaction, error)
	Transfer(ctx context.Context, fromUser, toUser string, amount int64, note string) (Transaction, error)
	Balance(ctx context.Context, user string) (int64, error)
	Transactions(ctx context.Context) ([]Transaction, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	balances map[string]int64
	txs      []Transaction
	now      func() time.Time
}

// NewInMemory creates a fresh ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		balances: make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) Deposit(ctx context.Context, toUser string, amount int64, note string) (Transaction, error) {
	if err := validateUser(toUser); err != nil {
		return Transaction{}, err
	}
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := Transaction{
		ID:        ids.New(),
		ToUser:    toUser,
		Amount:    amount,
		Note:      note,
		CreatedAt: s.now(),
	}
	s.apply(tx)
	return tx, nil
}

func (s *InMemory) Transfer(ctx context.Context, fromUser, toUser string, amount int64, note string) (Transaction, error) {
	if err := validateUser(fromUser); err != nil {
		return Transaction{}, err
	}
	if err := validateUser(toUser); err != nil {
		return Transaction{}, err
	}
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if fromUser == toUser {
		return Transaction{}, ErrSameUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[fromUser] < amount {
		return Transaction{}, ErrInsufficientFunds
	}

	tx := Transaction{
		ID:        ids.New(),
		FromUser:  fromUser,
		ToUser:    toUser,
		Amount:    amount,
		Note:      note,
		CreatedAt: s.now(),
	}
	s.apply(tx)
	return tx, nil
}

func (s *InMemory) Balance(ctx context.Context, user string) (int64, error) {
	if err := validateUser(user); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[user], nil
}

// Transactions returns a snapshot of all posted entries in posting order.
func (s *InMemory) Transactions(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.txs))
	copy(out, s.txs)
	return out, nil
}

// apply posts the transaction. Caller holds the write lock.
func (s *InMemory) apply(tx Transaction) {
	if tx.FromUser != "" {
		s.balances[tx.FromUser] -= tx.Amount
	}
	s.balances[tx.ToUser] += tx.Amount
	s.txs = append(s.txs, tx)
}

func validateUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return ErrInvalidUser
	}
	return nil
}
