package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trust-service/internal/bucketing"
	"trust-service/internal/config"
	"trust-service/internal/encryption"
	"trust-service/internal/gateway"
	"trust-service/internal/hashing"
	"trust-service/internal/metrics"
	"trust-service/internal/models"
	"trust-service/internal/repository/memory"
	"trust-service/internal/service"
)

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *captureNotifier) Send(ctx context.Context, phone, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[phone] = code
	return nil
}

type stubGateway struct {
	mu       sync.Mutex
	sessions int
}

func (g *stubGateway) CreateSession(ctx context.Context, amount int64, description, callbackURL string) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	authority := fmt.Sprintf("AUTH-%d", g.sessions)
	return &gateway.Session{Authority: authority, RedirectURL: "https://pay.example/" + authority}, nil
}

func (g *stubGateway) Confirm(ctx context.Context, authority string, amount int64) (*gateway.Confirmation, error) {
	return &gateway.Confirmation{Status: gateway.ConfirmOK, RefID: "REF-" + authority}, nil
}

type testEnv struct {
	router   chi.Router
	store    *memory.Store
	notifier *captureNotifier
	wallets  *service.WalletService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	buckets := bucketing.NewManager(0, 0)
	m := metrics.Registry("trust")
	notifier := &captureNotifier{codes: make(map[string]string)}
	encryptor := encryption.NewManager(&config.Config{Environment: "test"}, nil)

	verifications := service.NewVerificationService(store, hashing.NewHasher(), encryptor,
		notifier, nil, m, nil, config.VerificationConfig{
			CodeTTL:        5 * time.Minute,
			ResendCooldown: 60 * time.Second,
			MaxAttempts:    5,
			BlockDuration:  30 * time.Minute,
		})
	wallets := service.NewWalletService(store, buckets, m, nil,
		config.WalletConfig{MinWithdrawal: 10000})
	payments := service.NewPaymentService(store, wallets, &stubGateway{}, nil, m, nil,
		config.PaymentConfig{
			CallbackURL: "https://api.example/payment/callback",
			DedupWindow: 15 * time.Minute,
		})

	router := NewRouter(
		NewVerificationHandler(verifications),
		NewWalletHandler(wallets),
		NewPaymentHandler(payments),
		store,
	)
	return &testEnv{router: router, store: store, notifier: notifier, wallets: wallets}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPhoneVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	phone := "09123456789"

	rec, resp := env.do(t, http.MethodPost, "/api/v1/verification/phone/request", map[string]interface{}{
		"user_id": userID, "phone": phone,
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("request code: status %d, body %s", rec.Code, rec.Body.String())
	}

	code := env.notifier.codes["+"+phone]
	if code == "" {
		code = env.notifier.codes[phone]
	}
	if code == "" {
		t.Fatalf("no code captured, have %v", env.notifier.codes)
	}

	rec, resp = env.do(t, http.MethodPost, "/api/v1/verification/phone/submit", map[string]interface{}{
		"user_id": userID, "code": code,
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("submit code: status %d, body %s", rec.Code, rec.Body.String())
	}

	// A second request for a verified phone conflicts.
	rec, _ = env.do(t, http.MethodPost, "/api/v1/verification/phone/request", map[string]interface{}{
		"user_id": userID, "phone": phone,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("request after verify: status = %d, want 409", rec.Code)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/verification/phone/"+userID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("phone status: %d", rec.Code)
	}
}

func TestPhoneSubmitWrongCode(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	rec, _ := env.do(t, http.MethodPost, "/api/v1/verification/phone/request", map[string]interface{}{
		"user_id": userID, "phone": "09123456780",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("request code: %d", rec.Code)
	}

	rec, resp := env.do(t, http.MethodPost, "/api/v1/verification/phone/submit", map[string]interface{}{
		"user_id": userID, "code": "00000",
	})
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("wrong code: status = %d, want 400", rec.Code)
	}
}

func TestIdentityReviewEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	rec, resp := env.do(t, http.MethodPost, "/api/v1/verification/identity", map[string]interface{}{
		"user_id":         userID,
		"national_number": "0012345678",
		"front_image_ref": "img/front",
		"back_image_ref":  "img/back",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit identity: status %d, body %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	artifactID := data["id"].(string)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/verification/identity/"+artifactID+"/review", map[string]interface{}{
		"decision": models.ReviewAccepted, "admin_id": uuid.New(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept identity: status %d, body %s", rec.Code, rec.Body.String())
	}

	// Terminal decision: re-review conflicts.
	rec, _ = env.do(t, http.MethodPost, "/api/v1/verification/identity/"+artifactID+"/review", map[string]interface{}{
		"decision": models.ReviewRejected, "reason": "fraud", "admin_id": uuid.New(),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-review: status = %d, want 409", rec.Code)
	}
}

func TestWithdrawalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()

	rec, _ := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{
		"user_id": userID, "amount": 5000,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("below minimum: status = %d, want 422", rec.Code)
	}

	// Seed an approved bank account and funds.
	if err := env.store.Banking().Create(ctx, &models.BankingInfo{
		ID:     uuid.New(),
		UserID: userID,
		Status: models.ReviewAccepted,
	}); err != nil {
		t.Fatalf("seed banking: %v", err)
	}
	if _, err := env.wallets.Credit(ctx, userID, 100000, "payment", "top-up", models.TxVerified); err != nil {
		t.Fatalf("seed funds: %v", err)
	}

	rec, resp := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{
		"user_id": userID, "amount": 100000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create withdrawal: status %d, body %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	requestID := data["id"].(string)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw/"+requestID+"/decide", map[string]interface{}{
		"decision": models.WithdrawApproved, "admin_id": adminID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve withdrawal: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/wallet/"+userID.String()+"/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status %d", rec.Code)
	}
	wallet := resp.Data.(map[string]interface{})
	if wallet["balance"].(float64) != 0 {
		t.Fatalf("balance = %v, want 0", wallet["balance"])
	}

	// Empty wallet: the next withdrawal is rejected.
	rec, _ = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{
		"user_id": userID, "amount": 10000,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: status = %d, want 422", rec.Code)
	}

	// Terminal decision.
	rec, _ = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw/"+requestID+"/decide", map[string]interface{}{
		"decision": models.WithdrawRejected, "reason": "late", "admin_id": adminID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-decide: status = %d, want 409", rec.Code)
	}
}

func TestPaymentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	rec, resp := env.do(t, http.MethodPost, "/api/v1/payment/request", map[string]interface{}{
		"user_id": userID, "amount": 50000, "description": "wallet top-up",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("request payment: status %d, body %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	if data["redirect_url"] == "" || data["duplicate"].(bool) {
		t.Fatalf("unexpected payment intent: %v", data)
	}
	paymentID := data["payment_id"].(string)

	// The repeated intent is answered from the existing session.
	rec, resp = env.do(t, http.MethodPost, "/api/v1/payment/request", map[string]interface{}{
		"user_id": userID, "amount": 50000, "description": "wallet top-up",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat payment: status %d", rec.Code)
	}
	if dup := resp.Data.(map[string]interface{}); !dup["duplicate"].(bool) {
		t.Fatal("repeat intent must be flagged duplicate")
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/payment/"+paymentID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get payment: status %d", rec.Code)
	}
	payment := resp.Data.(map[string]interface{})
	authority := payment["authority"].(string)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/payment/callback", map[string]interface{}{
		"authority": authority, "status": gateway.ConfirmOK,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: status %d, body %s", rec.Code, rec.Body.String())
	}
	if status := resp.Data.(map[string]interface{})["status"]; status != models.PaymentVerified {
		t.Fatalf("status = %v, want verified", status)
	}

	// Replayed callback is acknowledged idempotently.
	rec, resp = env.do(t, http.MethodPost, "/api/v1/payment/callback", map[string]interface{}{
		"authority": authority, "status": gateway.ConfirmOK,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("replay callback: status %d", rec.Code)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/wallet/"+userID.String()+"/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status %d", rec.Code)
	}
	if got := resp.Data.(map[string]interface{})["balance"].(float64); got != 50000 {
		t.Fatalf("balance = %v, want 50000 after exactly one credit", got)
	}
}

func TestPaymentRequestRejectsBadAmount(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/payment/request", map[string]interface{}{
		"user_id": uuid.New(), "amount": -5, "description": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: status = %d, want 400", rec.Code)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
