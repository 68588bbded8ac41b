package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/gateway"
	"trust-service/internal/models"
)

func TestRequestPaymentCreatesSession(t *testing.T) {
	svc, _, gw, _, _ := newPaymentHarness(t)
	ctx := context.Background()

	intent, err := svc.RequestPayment(ctx, uuid.New(), 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}
	if intent.Duplicate {
		t.Fatal("first intent must not be a duplicate")
	}
	if intent.RedirectURL == "" || intent.Payment.Authority == "" {
		t.Fatalf("missing gateway session data: %+v", intent)
	}
	if intent.Payment.Status != models.PaymentPending {
		t.Fatalf("status = %s, want pending", intent.Payment.Status)
	}
	if gw.createCalls != 1 {
		t.Fatalf("gateway sessions = %d, want 1", gw.createCalls)
	}
}

func TestRequestPaymentDeduplicatesPendingIntent(t *testing.T) {
	svc, _, gw, _, clock := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	clock.Advance(time.Minute)
	second, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("repeat intent inside the window must be a duplicate")
	}
	if second.Payment.ID != first.Payment.ID || second.RedirectURL != first.RedirectURL {
		t.Fatal("duplicate must return the existing session, not a new one")
	}
	if gw.createCalls != 1 {
		t.Fatalf("gateway sessions = %d, want 1", gw.createCalls)
	}

	// A different intent is not deduplicated.
	other, err := svc.RequestPayment(ctx, userID, 60000, "wallet top-up")
	if err != nil {
		t.Fatalf("different amount failed: %v", err)
	}
	if other.Duplicate {
		t.Fatal("different amount must open a new session")
	}
}

func TestRequestPaymentWindowExpires(t *testing.T) {
	svc, _, gw, _, clock := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	clock.Advance(16 * time.Minute)
	repeat, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("request after window failed: %v", err)
	}
	if repeat.Duplicate {
		t.Fatal("intent outside the window must not be a duplicate")
	}
	if gw.createCalls != 2 {
		t.Fatalf("gateway sessions = %d, want 2", gw.createCalls)
	}
}

func TestReconcileCallbackCreditsWalletOnce(t *testing.T) {
	svc, wallets, gw, _, _ := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}
	authority := intent.Payment.Authority

	settled, err := svc.ReconcileCallback(ctx, authority, gateway.ConfirmOK)
	if err != nil {
		t.Fatalf("ReconcileCallback failed: %v", err)
	}
	if settled.Status != models.PaymentVerified {
		t.Fatalf("status = %s, want verified", settled.Status)
	}
	if settled.ReferenceID == "" {
		t.Fatal("settled payment must carry the gateway reference id")
	}

	wallet, err := wallets.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 50000 {
		t.Fatalf("balance = %d, want 50000", wallet.Balance)
	}

	// Idempotent: the replayed callback settles without a second credit.
	again, err := svc.ReconcileCallback(ctx, authority, gateway.ConfirmOK)
	if err != nil {
		t.Fatalf("replayed callback failed: %v", err)
	}
	if again.Status != models.PaymentVerified {
		t.Fatalf("replay status = %s, want verified", again.Status)
	}
	if gw.confirmCalls != 1 {
		t.Fatalf("gateway confirms = %d, want 1", gw.confirmCalls)
	}

	wallet, err = wallets.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance after replay failed: %v", err)
	}
	if wallet.Balance != 50000 {
		t.Fatalf("balance after replay = %d, want 50000", wallet.Balance)
	}

	txs, err := wallets.ListTransactions(ctx, userID, models.TxVerified)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("income entries = %d, want exactly 1", len(txs))
	}
}

func TestReconcileCallbackFailureStatus(t *testing.T) {
	svc, wallets, _, _, _ := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}

	settled, err := svc.ReconcileCallback(ctx, intent.Payment.Authority, "NOK")
	if err != nil {
		t.Fatalf("ReconcileCallback failed: %v", err)
	}
	if settled.Status != models.PaymentFailed {
		t.Fatalf("status = %s, want failed", settled.Status)
	}

	if _, err := wallets.Balance(ctx, userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed payment must not create a wallet, got %v", err)
	}

	// A failed intent no longer blocks a fresh session.
	retry, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("retry after failure failed: %v", err)
	}
	if retry.Duplicate {
		t.Fatal("retry after a failed payment must open a new session")
	}
}

func TestReconcileCallbackConfirmRejected(t *testing.T) {
	svc, wallets, gw, _, _ := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}

	// The user-facing callback claims success but the server-side
	// confirmation disagrees; no money moves.
	gw.confirmStatus = gateway.ConfirmFailed
	settled, err := svc.ReconcileCallback(ctx, intent.Payment.Authority, gateway.ConfirmOK)
	if err != nil {
		t.Fatalf("ReconcileCallback failed: %v", err)
	}
	if settled.Status != models.PaymentFailed {
		t.Fatalf("status = %s, want failed", settled.Status)
	}
	if _, err := wallets.Balance(ctx, userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unconfirmed payment must not credit a wallet, got %v", err)
	}
}

func TestReconcileCallbackStalledPaidNeverResumes(t *testing.T) {
	svc, wallets, _, store, clock := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}

	// A crash after the claim but before the credit leaves the payment
	// in paid with no ledger entry.
	if err := store.Payments().Transition(ctx, intent.Payment.ID,
		models.PaymentPending, models.PaymentPaid, "", clock.Now()); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if _, err := svc.ReconcileCallback(ctx, intent.Payment.Authority, gateway.ConfirmOK); !errors.Is(err, ErrAlreadyFinal) {
		t.Fatalf("retry on paid = %v, want ErrAlreadyFinal", err)
	}

	// The retry must not credit the wallet behind the claim.
	if _, err := wallets.EnsureWallet(ctx, userID); err != nil {
		t.Fatalf("EnsureWallet failed: %v", err)
	}
	wallet, err := wallets.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if wallet.Balance != 0 {
		t.Fatalf("balance = %d, want 0", wallet.Balance)
	}
}

func TestReconcileCallbackUnknownAuthority(t *testing.T) {
	svc, _, _, _, _ := newPaymentHarness(t)

	if _, err := svc.ReconcileCallback(context.Background(), "AUTH-missing", gateway.ConfirmOK); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown authority = %v, want ErrNotFound", err)
	}
}

func TestVerifiedPaymentReturnedAsDuplicate(t *testing.T) {
	svc, _, gw, _, clock := newPaymentHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}
	if _, err := svc.ReconcileCallback(ctx, intent.Payment.Authority, gateway.ConfirmOK); err != nil {
		t.Fatalf("ReconcileCallback failed: %v", err)
	}

	clock.Advance(time.Minute)
	repeat, err := svc.RequestPayment(ctx, userID, 50000, "wallet top-up")
	if err != nil {
		t.Fatalf("repeat request failed: %v", err)
	}
	if !repeat.Duplicate || repeat.Payment.Status != models.PaymentVerified {
		t.Fatalf("repeat = %+v, want duplicate of the verified payment", repeat)
	}
	if gw.createCalls != 1 {
		t.Fatalf("gateway sessions = %d, want 1", gw.createCalls)
	}
}
