package ledger

import (
	"errors"
	"time"
)

var (
	ErrInvalidUser       = errors.New("ledger: user must be a non-empty string")
	ErrInvalidAmount     = errors.New("ledger: amount must be greater than zero")
	ErrSameUser          = errors.New("ledger: source and destination must differ")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Transaction is a posted ledger entry. Deposits carry an empty FromUser.
// Amounts are integers in the smallest currency unit.
type Transaction struct {
	ID        string    `json:"id"`
	FromUser  string    `json:"from_user,omitempty"`
	ToUser    string    `json:"to_user"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
