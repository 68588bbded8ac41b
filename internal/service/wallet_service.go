package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/audit"
	"trust-service/internal/bucketing"
	"trust-service/internal/config"
	"trust-service/internal/metrics"
	"trust-service/internal/models"
	"trust-service/internal/repository"
	"trust-service/internal/util"
)

// WalletService owns the ledger and the withdrawal workflow. All
// mutations of one wallet serialize on a striped mutex, and every
// committed write carries the wallet version forward, so the cached
// balance can never drift from the transaction log unnoticed.
type WalletService struct {
	store   repository.Store
	buckets *bucketing.Manager
	locks   []sync.Mutex
	metrics *metrics.Metrics
	audit   *audit.Recorder
	policy  config.WalletConfig
	nowFn   func() time.Time
}

func NewWalletService(
	store repository.Store,
	buckets *bucketing.Manager,
	m *metrics.Metrics,
	recorder *audit.Recorder,
	policy config.WalletConfig,
) *WalletService {
	return &WalletService{
		store:   store,
		buckets: buckets,
		locks:   make([]sync.Mutex, buckets.LockStripes()),
		metrics: m,
		audit:   recorder,
		policy:  policy,
		nowFn:   time.Now,
	}
}

func (s *WalletService) lockWallet(walletID uuid.UUID) func() {
	mu := &s.locks[s.buckets.LockStripe(walletID)]
	mu.Lock()
	return mu.Unlock
}

// EnsureWallet returns the user's wallet, creating an empty one on first
// touch.
func (s *WalletService) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.store.Wallets().GetByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := s.nowFn()
	wallet = &models.Wallet{
		ID:               uuid.New(),
		UserID:           userID,
		Balance:          0,
		BalanceUpdatedAt: now,
		CreatedAt:        now,
		Version:          1,
	}
	if err := s.store.Wallets().Create(ctx, wallet); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return s.store.Wallets().GetByUser(ctx, userID)
		}
		return nil, err
	}
	return wallet, nil
}

// Balance returns the wallet with its balance checked against the
// recomputed ledger sum. Divergence aborts with ErrLedgerCorrupted.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.store.Wallets().GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.verifiedBalance(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// verifiedBalance recomputes the balance from the ledger and cross
// checks the wallet's cached value.
func (s *WalletService) verifiedBalance(ctx context.Context, wallet *models.Wallet) (int64, error) {
	txs, err := s.store.Wallets().ListTransactions(ctx, wallet.ID, "")
	if err != nil {
		return 0, err
	}
	recomputed := ledgerBalance(txs)
	if recomputed != wallet.Balance {
		util.Error("wallet balance diverged from ledger",
			util.String("wallet_id", wallet.ID.String()),
			util.Int64("cached", wallet.Balance),
			util.Int64("recomputed", recomputed))
		s.metrics.Errors.WithLabelValues("ledger").Inc()
		return 0, ErrLedgerCorrupted
	}
	return recomputed, nil
}

func ledgerBalance(txs []*models.WalletTransaction) int64 {
	var balance int64
	for _, tx := range txs {
		if tx.Status != models.TxVerified {
			continue
		}
		switch tx.Direction {
		case models.DirectionIncome:
			balance += tx.Amount
		case models.DirectionOutcome:
			balance -= tx.Amount
		}
	}
	return balance
}

// ListTransactions returns a wallet's ledger entries, optionally
// filtered by status.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, status string) ([]*models.WalletTransaction, error) {
	wallet, err := s.store.Wallets().GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.store.Wallets().ListTransactions(ctx, wallet.ID, status)
}

// Credit appends an income transaction to a user's wallet. Status must
// be pending or verified; a verified income moves the balance in the
// same commit.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount int64, tag, description, status string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransition)
	}
	if status != models.TxPending && status != models.TxVerified {
		return nil, fmt.Errorf("%w: income cannot start %s", ErrInvalidTransition, status)
	}

	wallet, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockWallet(wallet.ID)
	defer unlock()

	wallet, err = s.store.Wallets().GetByID(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	balance, err := s.verifiedBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	tx := &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Amount:      amount,
		Direction:   models.DirectionIncome,
		Tag:         tag,
		Description: description,
		Status:      status,
		CreatedAt:   now,
	}
	if status == models.TxVerified {
		tx.VerifiedAt = &now
		balance += amount
	}

	if err := s.store.Wallets().AppendTransaction(ctx, wallet.ID, tx, balance, wallet.Version); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{Action: audit.ActionTxAppended, UserID: userID, EntityID: tx.ID, Detail: tx.Direction})
	return tx, nil
}

// DecideTransaction settles a pending ledger entry. pending to verified
// commits the balance effect; pending to rejected leaves the balance
// untouched. Both are terminal.
func (s *WalletService) DecideTransaction(ctx context.Context, walletID, txID uuid.UUID, decision string, adminID uuid.UUID) error {
	if decision != models.TxVerified && decision != models.TxRejected {
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}

	unlock := s.lockWallet(walletID)
	defer unlock()

	wallet, err := s.store.Wallets().GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	balance, err := s.verifiedBalance(ctx, wallet)
	if err != nil {
		return err
	}

	tx, err := s.store.Wallets().GetTransaction(ctx, walletID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if tx.Status != models.TxPending {
		return ErrInvalidTransition
	}

	if decision == models.TxVerified {
		switch tx.Direction {
		case models.DirectionIncome:
			balance += tx.Amount
		case models.DirectionOutcome:
			balance -= tx.Amount
		}
	}

	err = s.store.Wallets().CommitTransactionStatus(ctx, walletID, txID,
		models.TxPending, decision, adminID, s.nowFn(), balance, wallet.Version)
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrInvalidTransition
	}
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{Action: audit.ActionTxDecided, EntityID: txID, ActorID: adminID, Detail: decision})
	return nil
}

// CreateWithdrawal opens a pending withdrawal request. Funds stay in the
// wallet until approval, but the pending amount is reserved against
// concurrent requests: available = verified balance minus the sum of
// pending withdrawals, checked under the wallet lock.
func (s *WalletService) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount int64) (*models.WithdrawRequest, error) {
	if amount < s.policy.MinWithdrawal {
		return nil, ErrBelowMinimum
	}

	banking, err := s.firstAcceptedBanking(ctx, userID)
	if err != nil {
		return nil, err
	}

	wallet, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockWallet(wallet.ID)
	defer unlock()

	wallet, err = s.store.Wallets().GetByID(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	balance, err := s.verifiedBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	pending, err := s.store.Withdrawals().ListByWallet(ctx, wallet.ID, models.WithdrawPending)
	if err != nil {
		return nil, err
	}
	var reserved int64
	for _, req := range pending {
		reserved += req.Amount
	}

	if amount > balance-reserved {
		s.metrics.Withdrawals.WithLabelValues("insufficient").Inc()
		return nil, ErrInsufficientFunds
	}

	req := &models.WithdrawRequest{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		UserID:        userID,
		BankingInfoID: banking.ID,
		Amount:        amount,
		Status:        models.WithdrawPending,
		CreatedAt:     s.nowFn(),
	}
	if err := s.store.Withdrawals().Create(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.Withdrawals.WithLabelValues("created").Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionWithdrawCreated, UserID: userID, EntityID: req.ID})
	return req, nil
}

// DecideWithdrawal settles a pending withdrawal. Approval claims the
// request first and then debits the wallet with a verified outcome; the
// claim is the only gate, so a request can never pay out twice.
// Rejection requires a reason and leaves the ledger untouched.
func (s *WalletService) DecideWithdrawal(ctx context.Context, requestID uuid.UUID, decision, reason string, adminID uuid.UUID) (*models.WithdrawRequest, error) {
	req, err := s.store.Withdrawals().GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// A settled request answers with the transition error, not whatever
	// precondition would fail today. The CAS in Decide stays the gate
	// against concurrent settlement.
	if req.Status != models.WithdrawPending {
		return nil, ErrInvalidTransition
	}

	now := s.nowFn()
	switch decision {
	case models.WithdrawRejected:
		if reason == "" {
			return nil, ErrRejectionReasonRequired
		}
		err := s.store.Withdrawals().Decide(ctx, requestID,
			models.WithdrawPending, models.WithdrawRejected, reason, adminID, now)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrInvalidTransition
		}
		if err != nil {
			return nil, err
		}
		s.metrics.Withdrawals.WithLabelValues("rejected").Inc()

	case models.WithdrawApproved:
		unlock := s.lockWallet(req.WalletID)

		wallet, err := s.store.Wallets().GetByID(ctx, req.WalletID)
		if err != nil {
			unlock()
			return nil, err
		}
		balance, err := s.verifiedBalance(ctx, wallet)
		if err != nil {
			unlock()
			return nil, err
		}
		if req.Amount > balance {
			unlock()
			return nil, ErrInsufficientFunds
		}

		err = s.store.Withdrawals().Decide(ctx, requestID,
			models.WithdrawPending, models.WithdrawApproved, "", adminID, now)
		if err != nil {
			unlock()
			if errors.Is(err, repository.ErrStatusConflict) {
				return nil, ErrInvalidTransition
			}
			return nil, err
		}

		tx := &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    wallet.ID,
			Amount:      req.Amount,
			Direction:   models.DirectionOutcome,
			Tag:         "withdraw",
			Description: fmt.Sprintf("withdrawal %s", req.ID),
			Status:      models.TxVerified,
			VerifiedAt:  &now,
			VerifiedBy:  adminID,
			CreatedAt:   now,
		}
		err = s.store.Wallets().AppendTransaction(ctx, wallet.ID, tx, balance-req.Amount, wallet.Version)
		unlock()
		if err != nil {
			util.Error("approved withdrawal failed to debit ledger",
				util.String("request_id", requestID.String()),
				util.ErrorField(err))
			s.metrics.Errors.WithLabelValues("ledger").Inc()
			return nil, fmt.Errorf("failed to debit approved withdrawal: %w", err)
		}
		s.metrics.Withdrawals.WithLabelValues("approved").Inc()

	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}

	s.audit.Record(ctx, audit.Event{Action: audit.ActionWithdrawDecided, EntityID: requestID, ActorID: adminID, Detail: decision})
	return s.store.Withdrawals().GetByID(ctx, requestID)
}

// ListWithdrawals returns a user's withdrawal requests, optionally
// filtered by status.
func (s *WalletService) ListWithdrawals(ctx context.Context, userID uuid.UUID, status string) ([]*models.WithdrawRequest, error) {
	wallet, err := s.store.Wallets().GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.store.Withdrawals().ListByWallet(ctx, wallet.ID, status)
}

func (s *WalletService) firstAcceptedBanking(ctx context.Context, userID uuid.UUID) (*models.BankingInfo, error) {
	infos, err := s.store.Banking().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Status == models.ReviewAccepted {
			return info, nil
		}
	}
	return nil, ErrNoVerifiedBankingInfo
}
