package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction statuses. Pending entries do not count toward the balance;
// verified and rejected are terminal. Rows are never deleted; a removal
// is a rejected transaction, which keeps the history auditable.
const (
	TxPending  = "pending"
	TxVerified = "verified"
	TxRejected = "rejected"
)

// Transaction directions.
const (
	DirectionIncome  = "income"
	DirectionOutcome = "outcome"
)

// Withdraw request statuses. Approved and rejected are terminal.
const (
	WithdrawPending  = "pending"
	WithdrawApproved = "approved"
	WithdrawRejected = "rejected"
)

// Wallet holds a user's derived balance. Balance is a cache of
// sum(verified incomes) - sum(verified outcomes) over the transaction
// log; the log is authoritative and the cache is rewritten in the same
// commit as any status change that affects it.
type Wallet struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Balance          int64     `json:"balance"`
	BalanceUpdatedAt time.Time `json:"balance_updated_at"`
	CreatedAt        time.Time `json:"created_at"`

	// Version guards conditional updates on the wallet row.
	Version int64 `json:"-"`
}

// WalletTransaction is one immutable ledger entry. Only Status (and the
// verification stamp fields) may change after creation, and only once.
type WalletTransaction struct {
	ID          uuid.UUID  `json:"id"`
	WalletID    uuid.UUID  `json:"wallet_id"`
	Amount      int64      `json:"amount"`
	Direction   string     `json:"direction"`
	Tag         string     `json:"tag,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	VerifiedBy  uuid.UUID  `json:"verified_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// WithdrawRequest asks to move verified funds out of a wallet. Funds are
// debited only on approval, but a pending request reserves its amount
// against concurrent requests.
type WithdrawRequest struct {
	ID              uuid.UUID  `json:"id"`
	WalletID        uuid.UUID  `json:"wallet_id"`
	UserID          uuid.UUID  `json:"user_id"`
	BankingInfoID   uuid.UUID  `json:"banking_info_id"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ProcessedBy     uuid.UUID  `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
