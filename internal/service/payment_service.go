package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/audit"
	"trust-service/internal/config"
	"trust-service/internal/gateway"
	"trust-service/internal/metrics"
	"trust-service/internal/models"
	"trust-service/internal/repository"
	rediscache "trust-service/internal/repository/redis"
	"trust-service/internal/util"
)

// PaymentIntent is the answer to a payment request: either a fresh
// gateway session or an existing one found inside the dedup window.
type PaymentIntent struct {
	Payment     *models.PaymentRequest
	RedirectURL string
	Duplicate   bool
}

// PaymentService guards gateway payments against duplicate intents and
// reconciles gateway callbacks into the ledger.
type PaymentService struct {
	store   repository.Store
	wallets *WalletService
	gateway gateway.Gateway
	dedup   *rediscache.DedupCache
	metrics *metrics.Metrics
	audit   *audit.Recorder
	policy  config.PaymentConfig
	nowFn   func() time.Time
}

func NewPaymentService(
	store repository.Store,
	wallets *WalletService,
	gw gateway.Gateway,
	dedup *rediscache.DedupCache,
	m *metrics.Metrics,
	recorder *audit.Recorder,
	policy config.PaymentConfig,
) *PaymentService {
	return &PaymentService{
		store:   store,
		wallets: wallets,
		gateway: gw,
		dedup:   dedup,
		metrics: m,
		audit:   recorder,
		policy:  policy,
		nowFn:   time.Now,
	}
}

// RequestPayment opens a gateway checkout for a top-up intent. The same
// user retrying the same amount and description inside the dedup window
// gets the existing session back instead of a second charge attempt.
func (s *PaymentService) RequestPayment(ctx context.Context, userID uuid.UUID, amount int64, description string) (*PaymentIntent, error) {
	now := s.nowFn()
	fingerprint := models.PaymentFingerprint(userID, amount, description)

	if existing := s.findExisting(ctx, userID, fingerprint, now); existing != nil {
		s.metrics.PaymentDedupHits.Inc()
		return &PaymentIntent{
			Payment:     existing,
			RedirectURL: existing.RedirectURL,
			Duplicate:   true,
		}, nil
	}

	// The gateway session is obtained before any payment row exists, so
	// no lock is held across the external call.
	start := time.Now()
	session, err := s.gateway.CreateSession(ctx, amount, description, s.policy.CallbackURL)
	if err != nil {
		s.metrics.GatewayLatency.WithLabelValues("create", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	s.metrics.GatewayLatency.WithLabelValues("create", "ok").Observe(time.Since(start).Seconds())

	payment := &models.PaymentRequest{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Currency:    "IRR",
		Description: description,
		Fingerprint: fingerprint,
		Authority:   session.Authority,
		RedirectURL: session.RedirectURL,
		Status:      models.PaymentPending,
		CreatedAt:   now,
	}
	if err := s.store.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}

	if s.dedup != nil {
		s.dedup.Remember(fingerprint, payment.ID, s.policy.DedupWindow)
	}
	s.metrics.Payments.WithLabelValues("created").Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionPaymentCreated, UserID: userID, EntityID: payment.ID})

	return &PaymentIntent{Payment: payment, RedirectURL: session.RedirectURL}, nil
}

// findExisting returns a payment inside the dedup window that should be
// reused: a verified one (the money already arrived) or a live pending
// or paid one (a charge attempt is in flight). The cache is only a fast
// path; the store query is authoritative.
func (s *PaymentService) findExisting(ctx context.Context, userID uuid.UUID, fingerprint string, now time.Time) *models.PaymentRequest {
	since := now.Add(-s.policy.DedupWindow)

	if s.dedup != nil {
		if id := s.dedup.Lookup(fingerprint); id != uuid.Nil {
			p, err := s.store.Payments().GetByID(ctx, id)
			if err == nil && s.reusable(p, since) {
				return p
			}
		}
	}

	p, err := s.store.Payments().FindActiveByFingerprint(ctx, userID, fingerprint, since)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			util.Warn("payment dedup lookup failed", util.ErrorField(err))
		}
		return nil
	}
	if s.reusable(p, since) {
		return p
	}
	return nil
}

func (s *PaymentService) reusable(p *models.PaymentRequest, since time.Time) bool {
	if p.CreatedAt.Before(since) {
		return false
	}
	switch p.Status {
	case models.PaymentPending, models.PaymentPaid, models.PaymentVerified:
		return true
	}
	return false
}

// ReconcileCallback settles a gateway callback. The transition chain is
// pending to paid to verified; the income transaction is appended
// between the two claims, so only the caller that wins the pending claim
// ever touches the ledger. A callback landing on a settled payment is
// acknowledged without effect.
func (s *PaymentService) ReconcileCallback(ctx context.Context, authority, gatewayStatus string) (*models.PaymentRequest, error) {
	payment, err := s.store.Payments().GetByAuthority(ctx, authority)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if payment.IsFinal() {
		return payment, nil
	}

	now := s.nowFn()

	if gatewayStatus != gateway.ConfirmOK {
		err := s.store.Payments().Transition(ctx, payment.ID,
			models.PaymentPending, models.PaymentFailed, "", now)
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.settledOrBusy(ctx, payment.ID)
		}
		if err != nil {
			return nil, err
		}
		if s.dedup != nil {
			s.dedup.Forget(payment.Fingerprint)
		}
		s.metrics.Payments.WithLabelValues("failed").Inc()
		return s.store.Payments().GetByID(ctx, payment.ID)
	}

	// Claim the callback. A concurrent duplicate loses this CAS and is
	// answered from the settled record.
	err = s.store.Payments().Transition(ctx, payment.ID,
		models.PaymentPending, models.PaymentPaid, "", now)
	if errors.Is(err, repository.ErrStatusConflict) {
		return s.settledOrBusy(ctx, payment.ID)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.Payments.WithLabelValues("paid").Inc()

	// Server-side confirmation with the gateway; the user-supplied
	// status alone is never trusted.
	start := time.Now()
	confirmation, err := s.gateway.Confirm(ctx, authority, payment.Amount)
	if err != nil {
		s.metrics.GatewayLatency.WithLabelValues("confirm", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	s.metrics.GatewayLatency.WithLabelValues("confirm", "ok").Observe(time.Since(start).Seconds())

	if confirmation.Status != gateway.ConfirmOK {
		if err := s.store.Payments().Transition(ctx, payment.ID,
			models.PaymentPaid, models.PaymentFailed, "", now); err != nil {
			return nil, err
		}
		if s.dedup != nil {
			s.dedup.Forget(payment.Fingerprint)
		}
		s.metrics.Payments.WithLabelValues("failed").Inc()
		return s.store.Payments().GetByID(ctx, payment.ID)
	}

	if _, err := s.wallets.Credit(ctx, payment.UserID, payment.Amount,
		"payment", payment.Description, models.TxVerified); err != nil {
		util.Error("confirmed payment failed to credit wallet",
			util.String("payment_id", payment.ID.String()),
			util.ErrorField(err))
		s.metrics.Errors.WithLabelValues("ledger").Inc()
		return nil, err
	}

	err = s.store.Payments().Transition(ctx, payment.ID,
		models.PaymentPaid, models.PaymentVerified, confirmation.RefID, now)
	if err != nil {
		return nil, err
	}

	s.metrics.Payments.WithLabelValues("verified").Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionPaymentSettled, UserID: payment.UserID, EntityID: payment.ID})
	return s.store.Payments().GetByID(ctx, payment.ID)
}

// GetPayment returns a payment by id.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	p, err := s.store.Payments().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// settledOrBusy reloads a payment after a lost claim. A settled payment
// is returned as the idempotent answer; one still mid-flight surfaces
// ErrAlreadyFinal so the caller retries later.
func (s *PaymentService) settledOrBusy(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	p, err := s.store.Payments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsFinal() {
		return p, nil
	}
	return nil, ErrAlreadyFinal
}
