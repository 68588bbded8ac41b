// Package repository defines the persistence contracts for the trust
// core. Every state transition is a conditional update keyed on the
// current state (a version counter or the status itself); implementations
// must reject stale writes with ErrVersionConflict or ErrStatusConflict
// so that check-then-act races cannot lose transitions.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyExists  = errors.New("record already exists")
	ErrVersionConflict = errors.New("version conflict")
	ErrStatusConflict  = errors.New("status conflict")
)

// PhoneVerificationRepository persists per-user phone verification state.
// Save with expectedVersion 0 creates the record; any other value is a
// compare-and-swap against the stored version.
type PhoneVerificationRepository interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error)
	Save(ctx context.Context, v *models.PhoneVerification, expectedVersion int64) error
}

// IdentityRepository persists national identity submissions.
type IdentityRepository interface {
	Create(ctx context.Context, cred *models.IdentityCredential) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.IdentityCredential, error)
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.IdentityCredential, error)
	// Decide moves fromStatus -> toStatus; fails with ErrStatusConflict if
	// the stored status is no longer fromStatus.
	Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error
}

// BankingRepository persists bank account submissions.
type BankingRepository interface {
	Create(ctx context.Context, info *models.BankingInfo) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BankingInfo, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.BankingInfo, error)
	Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error
}

// WalletRepository persists wallets and their transaction log. The two
// mutating calls carry the recomputed balance snapshot and the expected
// wallet version, so the snapshot, the log change and the version bump
// commit together or not at all.
type WalletRepository interface {
	Create(ctx context.Context, w *models.Wallet) error
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	// ListTransactions returns entries newest first; status "" means all.
	ListTransactions(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WalletTransaction, error)
	GetTransaction(ctx context.Context, walletID, txID uuid.UUID) (*models.WalletTransaction, error)
	AppendTransaction(ctx context.Context, walletID uuid.UUID, tx *models.WalletTransaction, balance int64, expectedVersion int64) error
	// CommitTransactionStatus moves one entry fromStatus -> toStatus and
	// rewrites the balance snapshot in the same commit.
	CommitTransactionStatus(ctx context.Context, walletID, txID uuid.UUID, fromStatus, toStatus string, verifiedBy uuid.UUID, at time.Time, balance int64, expectedVersion int64) error
}

// WithdrawRepository persists withdrawal requests.
type WithdrawRepository interface {
	Create(ctx context.Context, req *models.WithdrawRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawRequest, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WithdrawRequest, error)
	// Decide moves fromStatus -> toStatus exactly once.
	Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, reason string, processedBy uuid.UUID, at time.Time) error
}

// PaymentRepository persists gateway payment intents.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	GetByAuthority(ctx context.Context, authority string) (*models.PaymentRequest, error)
	// FindActiveByFingerprint returns the newest payment for the
	// fingerprint created at or after since whose status is pending, paid
	// or verified, or ErrNotFound.
	FindActiveByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string, since time.Time) (*models.PaymentRequest, error)
	// Transition moves fromStatus -> toStatus conditionally.
	Transition(ctx context.Context, id uuid.UUID, fromStatus, toStatus, referenceID string, at time.Time) error
}

// Store bundles the repositories one backend provides.
type Store interface {
	PhoneVerifications() PhoneVerificationRepository
	Identities() IdentityRepository
	Banking() BankingRepository
	Wallets() WalletRepository
	Withdrawals() WithdrawRepository
	Payments() PaymentRepository
	HealthCheck(ctx context.Context) error
	Close()
}
