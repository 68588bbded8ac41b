package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/models"
)

func TestCreditAndBalance(t *testing.T) {
	svc, _, _ := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.Credit(ctx, userID, 70000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("verified credit failed: %v", err)
	}
	if _, err := svc.Credit(ctx, userID, 5000, "referral", "bonus", models.TxPending); err != nil {
		t.Fatalf("pending credit failed: %v", err)
	}

	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 70000 {
		t.Fatalf("balance = %d, want 70000 (pending income must not count)", wallet.Balance)
	}
}

func TestCreditRejectsBadInput(t *testing.T) {
	svc, _, _ := newWalletHarness(t)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, uuid.New(), 0, "t", "d", models.TxVerified); err == nil {
		t.Fatal("zero amount must be rejected")
	}
	if _, err := svc.Credit(ctx, uuid.New(), 100, "t", "d", models.TxRejected); err == nil {
		t.Fatal("rejected starting status must be refused")
	}
}

func TestDecideTransaction(t *testing.T) {
	svc, _, _ := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()

	tx, err := svc.Credit(ctx, userID, 30000, "payment", "top-up", models.TxPending)
	if err != nil {
		t.Fatalf("pending credit failed: %v", err)
	}

	if err := svc.DecideTransaction(ctx, tx.WalletID, tx.ID, models.TxVerified, adminID); err != nil {
		t.Fatalf("verify transaction failed: %v", err)
	}
	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 30000 {
		t.Fatalf("balance = %d, want 30000", wallet.Balance)
	}

	// Terminal: a settled transaction cannot be decided again.
	if err := svc.DecideTransaction(ctx, tx.WalletID, tx.ID, models.TxRejected, adminID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-decide = %v, want ErrInvalidTransition", err)
	}
}

func TestDecideTransactionRejectedLeavesBalance(t *testing.T) {
	svc, _, _ := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	tx, err := svc.Credit(ctx, userID, 30000, "payment", "top-up", models.TxPending)
	if err != nil {
		t.Fatalf("pending credit failed: %v", err)
	}
	if err := svc.DecideTransaction(ctx, tx.WalletID, tx.ID, models.TxRejected, uuid.New()); err != nil {
		t.Fatalf("reject transaction failed: %v", err)
	}

	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 0 {
		t.Fatalf("balance = %d, want 0", wallet.Balance)
	}

	// The entry stays in the ledger as an auditable rejected row.
	txs, err := svc.ListTransactions(ctx, userID, models.TxRejected)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("rejected entries = %d, want 1", len(txs))
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	svc, store, clock := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()

	seedAcceptedBanking(t, store, userID, clock.Now())
	if _, err := svc.Credit(ctx, userID, 100000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	req, err := svc.CreateWithdrawal(ctx, userID, 100000)
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}
	if req.Status != models.WithdrawPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}

	// The pending request reserves the full balance.
	if _, err := svc.CreateWithdrawal(ctx, userID, 10000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("second withdrawal with reserved funds = %v, want ErrInsufficientFunds", err)
	}

	clock.Advance(time.Minute)
	approved, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawApproved, "", adminID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != models.WithdrawApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}

	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 0 {
		t.Fatalf("balance after approval = %d, want 0", wallet.Balance)
	}

	outcomes, err := svc.ListTransactions(ctx, userID, models.TxVerified)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	var debits int
	for _, tx := range outcomes {
		if tx.Direction == models.DirectionOutcome {
			debits++
			if tx.Amount != 100000 {
				t.Fatalf("debit amount = %d, want 100000", tx.Amount)
			}
		}
	}
	if debits != 1 {
		t.Fatalf("debits = %d, want exactly 1", debits)
	}

	if _, err := svc.CreateWithdrawal(ctx, userID, 10000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("withdrawal from empty wallet = %v, want ErrInsufficientFunds", err)
	}

	// Terminal: approving or rejecting again must fail.
	if _, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawApproved, "", adminID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-approve = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawRejected, "late", adminID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject after approve = %v, want ErrInvalidTransition", err)
	}
}

func TestWithdrawalPreconditions(t *testing.T) {
	svc, store, clock := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.CreateWithdrawal(ctx, userID, 5000); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("below minimum = %v, want ErrBelowMinimum", err)
	}
	if _, err := svc.CreateWithdrawal(ctx, userID, 20000); !errors.Is(err, ErrNoVerifiedBankingInfo) {
		t.Fatalf("without banking info = %v, want ErrNoVerifiedBankingInfo", err)
	}

	seedAcceptedBanking(t, store, userID, clock.Now())
	if _, err := svc.CreateWithdrawal(ctx, userID, 20000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("without funds = %v, want ErrInsufficientFunds", err)
	}
}

func TestWithdrawalRejectRequiresReason(t *testing.T) {
	svc, store, clock := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()

	seedAcceptedBanking(t, store, userID, clock.Now())
	if _, err := svc.Credit(ctx, userID, 50000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	req, err := svc.CreateWithdrawal(ctx, userID, 20000)
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	if _, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawRejected, "", adminID); !errors.Is(err, ErrRejectionReasonRequired) {
		t.Fatalf("reject without reason = %v, want ErrRejectionReasonRequired", err)
	}

	rejected, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawRejected, "card holder mismatch", adminID)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.RejectionReason != "card holder mismatch" {
		t.Fatalf("reason = %q", rejected.RejectionReason)
	}

	// A settled request reports the bad transition, not whichever
	// precondition would trip first.
	if _, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawRejected, "", adminID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-reject without reason = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.DecideWithdrawal(ctx, req.ID, models.WithdrawApproved, "", adminID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve after reject = %v, want ErrInvalidTransition", err)
	}

	// Rejection releases the reservation and touches no ledger entry.
	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 50000 {
		t.Fatalf("balance = %d, want 50000", wallet.Balance)
	}
	if _, err := svc.CreateWithdrawal(ctx, userID, 50000); err != nil {
		t.Fatalf("withdrawal after rejection failed: %v", err)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, store, clock := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	seedAcceptedBanking(t, store, userID, clock.Now())
	if _, err := svc.Credit(ctx, userID, 50000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateWithdrawal(ctx, userID, 50000)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created int
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d concurrent full-balance withdrawals, want 1", created)
	}
}

func TestBalanceIntegrityCheck(t *testing.T) {
	svc, store, clock := newWalletHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.Credit(ctx, userID, 10000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	// Force the cached balance away from the ledger sum by appending a
	// verified income with a wrong snapshot, the exact corruption the
	// check exists to catch.
	wallet, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	rogue := &models.WalletTransaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Amount:    5000,
		Direction: models.DirectionIncome,
		Status:    models.TxVerified,
		CreatedAt: clock.Now(),
	}
	if err := store.Wallets().AppendTransaction(ctx, wallet.ID, rogue, wallet.Balance, wallet.Version); err != nil {
		t.Fatalf("failed to plant corruption: %v", err)
	}

	if _, err := svc.Balance(ctx, userID); !errors.Is(err, ErrLedgerCorrupted) {
		t.Fatalf("Balance on corrupted wallet = %v, want ErrLedgerCorrupted", err)
	}
	if _, err := svc.Credit(ctx, userID, 1000, "payment", "top-up", models.TxVerified); !errors.Is(err, ErrLedgerCorrupted) {
		t.Fatalf("Credit on corrupted wallet = %v, want ErrLedgerCorrupted", err)
	}
}
