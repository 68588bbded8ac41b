package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/bucketing"
	"trust-service/internal/config"
	"trust-service/internal/encryption"
	"trust-service/internal/gateway"
	"trust-service/internal/hashing"
	"trust-service/internal/metrics"
	"trust-service/internal/models"
	"trust-service/internal/repository/memory"
)

// testClock lets tests drive time explicitly.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeNotifier records handed-off codes and can simulate a dead SMS
// channel.
type fakeNotifier struct {
	mu    sync.Mutex
	codes []string
	fail  bool
}

func (f *fakeNotifier) Send(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sms channel down")
	}
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		t.Fatal("no code was handed to the notifier")
	}
	return f.codes[len(f.codes)-1]
}

// fakeGateway counts sessions and lets tests script confirmation
// outcomes.
type fakeGateway struct {
	mu            sync.Mutex
	createCalls   int
	confirmCalls  int
	confirmStatus string
	createErr     error
}

func (g *fakeGateway) CreateSession(ctx context.Context, amount int64, description, callbackURL string) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.createCalls++
	authority := fmt.Sprintf("AUTH-%d", g.createCalls)
	return &gateway.Session{
		Authority:   authority,
		RedirectURL: "https://pay.example/checkout/" + authority,
	}, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, authority string, amount int64) (*gateway.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	status := g.confirmStatus
	if status == "" {
		status = gateway.ConfirmOK
	}
	return &gateway.Confirmation{Status: status, RefID: "REF-" + authority}, nil
}

var verificationPolicy = config.VerificationConfig{
	CodeTTL:        5 * time.Minute,
	ResendCooldown: 60 * time.Second,
	MaxAttempts:    5,
	BlockDuration:  30 * time.Minute,
}

func newVerificationHarness(t *testing.T) (*VerificationService, *fakeNotifier, *memory.Store, *testClock) {
	t.Helper()

	store := memory.NewStore()
	clock := newTestClock()
	notifier := &fakeNotifier{}
	encryptor := encryption.NewManager(&config.Config{Environment: "test"}, nil)

	svc := NewVerificationService(store, hashing.NewHasher(), encryptor, notifier,
		nil, metrics.Registry("trust"), nil, verificationPolicy)
	svc.nowFn = clock.Now
	return svc, notifier, store, clock
}

func newWalletHarness(t *testing.T) (*WalletService, *memory.Store, *testClock) {
	t.Helper()

	store := memory.NewStore()
	clock := newTestClock()
	svc := NewWalletService(store, bucketing.NewManager(0, 0), metrics.Registry("trust"),
		nil, config.WalletConfig{MinWithdrawal: 10000})
	svc.nowFn = clock.Now
	return svc, store, clock
}

func newPaymentHarness(t *testing.T) (*PaymentService, *WalletService, *fakeGateway, *memory.Store, *testClock) {
	t.Helper()

	store := memory.NewStore()
	clock := newTestClock()
	gw := &fakeGateway{}

	wallets := NewWalletService(store, bucketing.NewManager(0, 0), metrics.Registry("trust"),
		nil, config.WalletConfig{MinWithdrawal: 10000})
	wallets.nowFn = clock.Now

	svc := NewPaymentService(store, wallets, gw, nil, metrics.Registry("trust"),
		nil, config.PaymentConfig{
			CallbackURL: "https://api.example/payment/callback",
			DedupWindow: 15 * time.Minute,
		})
	svc.nowFn = clock.Now
	return svc, wallets, gw, store, clock
}

// seedAcceptedBanking plants an approved bank account so withdrawal
// preconditions pass.
func seedAcceptedBanking(t *testing.T, store *memory.Store, userID uuid.UUID, at time.Time) *models.BankingInfo {
	t.Helper()

	info := &models.BankingInfo{
		ID:                uuid.New(),
		UserID:            userID,
		CardNumberLast4:   "4242",
		AccountHolderName: "Test Holder",
		BankName:          "Test Bank",
		Status:            models.ReviewAccepted,
		CreatedAt:         at,
	}
	if err := store.Banking().Create(context.Background(), info); err != nil {
		t.Fatalf("failed to seed banking info: %v", err)
	}
	return info
}
