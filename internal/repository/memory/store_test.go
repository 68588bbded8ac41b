package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/models"
	"trust-service/internal/repository"
)

func TestPhoneSaveVersionGuard(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	v := &models.PhoneVerification{UserID: userID, PhoneNumber: "09123456789"}
	if err := st.PhoneVerifications().Save(ctx, v, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Version != 1 {
		t.Fatalf("expected version 1, got %d", v.Version)
	}

	// Two writers loaded version 1; only the first commit wins.
	first := *v
	second := *v
	first.FailedAttempts = 1
	second.FailedAttempts = 1

	if err := st.PhoneVerifications().Save(ctx, &first, 1); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err := st.PhoneVerifications().Save(ctx, &second, 1)
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestWalletAppendBumpsVersionAndBalance(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	w := &models.Wallet{ID: uuid.New(), UserID: uuid.New(), CreatedAt: time.Now()}
	if err := st.Wallets().Create(ctx, w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	tx := &models.WalletTransaction{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Amount:    5000,
		Direction: models.DirectionIncome,
		Status:    models.TxVerified,
		CreatedAt: time.Now(),
	}
	if err := st.Wallets().AppendTransaction(ctx, w.ID, tx, 5000, w.Version); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Reusing the stale version must fail.
	err := st.Wallets().AppendTransaction(ctx, w.ID, tx, 10000, w.Version)
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, err := st.Wallets().GetByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", got.Balance)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestWithdrawDecideIsTerminal(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	admin := uuid.New()

	req := &models.WithdrawRequest{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		UserID:    uuid.New(),
		Amount:    20000,
		Status:    models.WithdrawPending,
		CreatedAt: time.Now(),
	}
	if err := st.Withdrawals().Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	if err := st.Withdrawals().Decide(ctx, req.ID, models.WithdrawPending, models.WithdrawApproved, "", admin, now); err != nil {
		t.Fatalf("decide: %v", err)
	}

	err := st.Withdrawals().Decide(ctx, req.ID, models.WithdrawPending, models.WithdrawRejected, "late", admin, now)
	if !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("expected status conflict on second decision, got %v", err)
	}
}

func TestPaymentFingerprintLookupFiltersWindowAndStatus(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()
	fp := models.PaymentFingerprint(userID, 50000, "wallet top-up")

	old := &models.PaymentRequest{
		ID: uuid.New(), UserID: userID, Amount: 50000, Fingerprint: fp,
		Authority: "A-old", Status: models.PaymentPending, CreatedAt: now.Add(-time.Hour),
	}
	failed := &models.PaymentRequest{
		ID: uuid.New(), UserID: userID, Amount: 50000, Fingerprint: fp,
		Authority: "A-failed", Status: models.PaymentFailed, CreatedAt: now.Add(-time.Minute),
	}
	active := &models.PaymentRequest{
		ID: uuid.New(), UserID: userID, Amount: 50000, Fingerprint: fp,
		Authority: "A-active", Status: models.PaymentPending, CreatedAt: now.Add(-30 * time.Second),
	}
	for _, p := range []*models.PaymentRequest{old, failed, active} {
		if err := st.Payments().Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := st.Payments().FindActiveByFingerprint(ctx, userID, fp, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Authority != "A-active" {
		t.Fatalf("expected the active in-window payment, got %s", got.Authority)
	}
}
