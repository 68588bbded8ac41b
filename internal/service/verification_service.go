package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/audit"
	"trust-service/internal/config"
	"trust-service/internal/encryption"
	"trust-service/internal/hashing"
	"trust-service/internal/metrics"
	"trust-service/internal/models"
	"trust-service/internal/notifier"
	"trust-service/internal/otp"
	"trust-service/internal/repository"
	rediscache "trust-service/internal/repository/redis"
	"trust-service/internal/util"
)

// casRetries bounds optimistic retry loops on version conflicts.
const casRetries = 3

// VerificationService runs the trust lifecycle for phone numbers,
// identity documents and banking info. Phone numbers verify by code
// match; the other two by admin review. The lockout, cooldown and
// terminal-transition rules live here so the three artifact kinds can
// never drift apart.
type VerificationService struct {
	store     repository.Store
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	notifier  notifier.Notifier
	cooldowns *rediscache.CooldownCache
	metrics   *metrics.Metrics
	audit     *audit.Recorder
	policy    config.VerificationConfig
	nowFn     func() time.Time
}

func NewVerificationService(
	store repository.Store,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	n notifier.Notifier,
	cooldowns *rediscache.CooldownCache,
	m *metrics.Metrics,
	recorder *audit.Recorder,
	policy config.VerificationConfig,
) *VerificationService {
	return &VerificationService{
		store:     store,
		hasher:    hasher,
		encryptor: encryptor,
		notifier:  n,
		cooldowns: cooldowns,
		metrics:   m,
		audit:     recorder,
		policy:    policy,
		nowFn:     time.Now,
	}
}

// RequestPhoneCode issues a fresh verification code and hands it to the
// notifier. The persisted state is committed before the send; a failed
// handoff rolls the cooldown back so the user can request again.
func (s *VerificationService) RequestPhoneCode(ctx context.Context, userID uuid.UUID, phone string) (*time.Time, error) {
	normalized := util.NormalizePhone(phone)
	if err := util.ValidatePhone(normalized); err != nil {
		return nil, err
	}

	now := s.nowFn()
	phoneHash := hashing.PhoneHash(normalized)

	if s.cooldowns != nil && s.cooldowns.IsBlocked(phoneHash) {
		s.metrics.CodesSent.WithLabelValues("locked").Inc()
		return nil, ErrLocked
	}

	v, err := s.store.PhoneVerifications().GetByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		v = &models.PhoneVerification{UserID: userID}
	}

	if v.IsVerified {
		s.metrics.CodesSent.WithLabelValues("already_verified").Inc()
		return nil, ErrAlreadyVerified
	}
	if v.IsBlocked(now) {
		s.metrics.CodesSent.WithLabelValues("locked").Inc()
		return nil, ErrLocked
	}
	if v.LastCodeSentAt != nil && now.Sub(*v.LastCodeSentAt) < s.policy.ResendCooldown {
		s.metrics.CodesSent.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	code := otp.GenerateCode()
	hash, salt, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	prevSentAt := v.LastCodeSentAt
	expiresAt := now.Add(s.policy.CodeTTL)
	expectedVersion := v.Version

	v.PhoneNumber = normalized
	v.CodeHash = hash
	v.CodeSalt = salt
	v.CodeExpiresAt = &expiresAt
	v.LastCodeSentAt = &now

	if err := s.store.PhoneVerifications().Save(ctx, v, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrAlreadyExists) {
			// A concurrent request already issued a code.
			return nil, ErrRateLimited
		}
		return nil, err
	}

	if s.cooldowns != nil {
		if ok, err := s.cooldowns.MarkCodeSent(phoneHash, s.policy.ResendCooldown); err == nil && !ok {
			util.Debug("cooldown cache lagged behind persisted state",
				util.String("phone_hash", phoneHash))
		}
	}

	// The send happens outside any lock. On failure the code and the
	// cooldown are rolled back: an undeliverable code must leave the
	// record re-requestable.
	if err := s.notifier.Send(ctx, normalized, code); err != nil {
		util.Error("verification code handoff failed",
			util.String("phone_hash", phoneHash), util.ErrorField(err))

		v.ClearCode()
		v.LastCodeSentAt = prevSentAt
		if rbErr := s.store.PhoneVerifications().Save(ctx, v, v.Version); rbErr != nil {
			util.Error("failed to roll back undelivered code",
				util.String("phone_hash", phoneHash), util.ErrorField(rbErr))
		}
		if s.cooldowns != nil {
			s.cooldowns.ClearCooldown(phoneHash)
		}
		s.metrics.CodesSent.WithLabelValues("delivery_failed").Inc()
		return nil, ErrDeliveryFailed
	}

	s.metrics.CodesSent.WithLabelValues("sent").Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionCodeSent, UserID: userID})
	return &expiresAt, nil
}

// SubmitPhoneCode checks a candidate code. Five consecutive mismatches
// lock the record for the block duration; an expired code does not
// consume an attempt. The whole decision commits as one conditional
// write and retries on version conflicts, so concurrent submissions can
// never lose an attempt increment or the lockout transition.
func (s *VerificationService) SubmitPhoneCode(ctx context.Context, userID uuid.UUID, candidate string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		now := s.nowFn()

		v, err := s.store.PhoneVerifications().GetByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNoCodeRequested
			}
			return err
		}

		outcome, err := s.decideSubmission(v, candidate, now)
		if err != nil {
			s.metrics.CodeSubmissions.WithLabelValues(outcome).Inc()
			return err
		}

		if err := s.store.PhoneVerifications().Save(ctx, v, v.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return err
		}

		phoneHash := hashing.PhoneHash(v.PhoneNumber)
		switch outcome {
		case "verified":
			s.metrics.CodeSubmissions.WithLabelValues(outcome).Inc()
			s.audit.Record(ctx, audit.Event{Action: audit.ActionCodeVerified, UserID: userID})
			if s.cooldowns != nil {
				s.cooldowns.ClearBlock(phoneHash)
			}
			return nil
		case "locked":
			s.metrics.CodeSubmissions.WithLabelValues(outcome).Inc()
			s.audit.Record(ctx, audit.Event{Action: audit.ActionUserBlocked, UserID: userID})
			if s.cooldowns != nil {
				s.cooldowns.MarkBlocked(phoneHash, s.policy.BlockDuration)
			}
			return ErrTooManyAttempts
		default:
			s.metrics.CodeSubmissions.WithLabelValues(outcome).Inc()
			s.audit.Record(ctx, audit.Event{Action: audit.ActionCodeRejected, UserID: userID})
			return ErrCodeMismatch
		}
	}
	return repository.ErrVersionConflict
}

// decideSubmission applies the submission rules to the in-memory record
// and reports the outcome: "verified", "locked" or "mismatch". Outcomes
// that do not mutate the record are returned as errors directly.
func (s *VerificationService) decideSubmission(v *models.PhoneVerification, candidate string, now time.Time) (string, error) {
	if v.IsVerified {
		return "already_verified", ErrAlreadyVerified
	}
	if v.IsBlocked(now) {
		return "locked", ErrLocked
	}
	if !v.HasPendingCode() {
		return "no_code", ErrNoCodeRequested
	}
	if otp.IsExpired(v.CodeExpiresAt, now) {
		return "expired", ErrCodeExpired
	}

	match, err := s.hasher.VerifyCode(candidate, v.CodeHash, v.CodeSalt)
	if err != nil {
		return "error", err
	}

	if !match {
		v.FailedAttempts++
		if v.FailedAttempts >= s.policy.MaxAttempts {
			blockedUntil := now.Add(s.policy.BlockDuration)
			v.ClearCode()
			v.BlockedUntil = &blockedUntil
			return "locked", nil
		}
		return "mismatch", nil
	}

	v.IsVerified = true
	v.VerifiedAt = &now
	v.FailedAttempts = 0
	v.BlockedUntil = nil
	v.ClearCode()
	return "verified", nil
}

// UnblockPhone lifts a lockout early and resets the attempt counter.
// Admin-only.
func (s *VerificationService) UnblockPhone(ctx context.Context, userID, adminID uuid.UUID) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		v, err := s.store.PhoneVerifications().GetByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		v.BlockedUntil = nil
		v.FailedAttempts = 0
		v.ClearCode()

		if err := s.store.PhoneVerifications().Save(ctx, v, v.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return err
		}

		if s.cooldowns != nil {
			s.cooldowns.ClearBlock(hashing.PhoneHash(v.PhoneNumber))
		}
		s.audit.Record(ctx, audit.Event{Action: audit.ActionUserUnblocked, UserID: userID, ActorID: adminID})
		return nil
	}
	return repository.ErrVersionConflict
}

// PhoneStatus returns the current phone verification record.
func (s *VerificationService) PhoneStatus(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error) {
	v, err := s.store.PhoneVerifications().GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// SubmitIdentity files a national identity submission for admin review.
// A pending or accepted submission blocks resubmission; a rejected one
// is superseded by a new record.
func (s *VerificationService) SubmitIdentity(ctx context.Context, userID uuid.UUID, nationalNumber, frontRef, backRef string) (*models.IdentityCredential, error) {
	latest, err := s.store.Identities().GetLatestByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		switch latest.Status {
		case models.ReviewAccepted:
			return nil, ErrAlreadyVerified
		case models.ReviewPending:
			return nil, ErrReviewPending
		}
	}

	cred := &models.IdentityCredential{
		ID:             uuid.New(),
		UserID:         userID,
		NationalNumber: nationalNumber,
		FrontImageRef:  frontRef,
		BackImageRef:   backRef,
		Status:         models.ReviewPending,
		CreatedAt:      s.nowFn(),
	}
	if err := s.store.Identities().Create(ctx, cred); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{Action: audit.ActionIdentitySubmit, UserID: userID, EntityID: cred.ID})
	return cred, nil
}

// ReviewIdentity applies an admin decision to a pending identity
// submission. Decisions are terminal.
func (s *VerificationService) ReviewIdentity(ctx context.Context, id uuid.UUID, decision, reason string, adminID uuid.UUID) error {
	if err := s.decideReview(ctx, s.store.Identities().Decide, id, decision, reason, adminID); err != nil {
		return err
	}
	s.metrics.ReviewDecisions.WithLabelValues("identity", decision).Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionIdentityDecided, EntityID: id, ActorID: adminID, Detail: decision})
	return nil
}

// SubmitBanking files a bank account for admin review. Card and sheba
// numbers are envelope-encrypted before they reach the store.
func (s *VerificationService) SubmitBanking(ctx context.Context, userID uuid.UUID, cardNumber, sheba, holderName, bankName string) (*models.BankingInfo, error) {
	cardEnc, keyID, err := s.encryptor.EncryptField(ctx, cardNumber)
	if err != nil {
		return nil, err
	}
	shebaEnc, _, err := s.encryptor.EncryptField(ctx, sheba)
	if err != nil {
		return nil, err
	}

	last4 := cardNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}

	info := &models.BankingInfo{
		ID:                  uuid.New(),
		UserID:              userID,
		CardNumberEncrypted: cardEnc,
		ShebaEncrypted:      shebaEnc,
		EncryptionKeyID:     keyID,
		CardNumberLast4:     last4,
		AccountHolderName:   holderName,
		BankName:            bankName,
		Status:              models.ReviewPending,
		CreatedAt:           s.nowFn(),
	}
	if err := s.store.Banking().Create(ctx, info); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{Action: audit.ActionBankingSubmit, UserID: userID, EntityID: info.ID})
	return info, nil
}

// ReviewBanking applies an admin decision to a pending bank account.
func (s *VerificationService) ReviewBanking(ctx context.Context, id uuid.UUID, decision, reason string, adminID uuid.UUID) error {
	if err := s.decideReview(ctx, s.store.Banking().Decide, id, decision, reason, adminID); err != nil {
		return err
	}
	s.metrics.ReviewDecisions.WithLabelValues("banking", decision).Inc()
	s.audit.Record(ctx, audit.Event{Action: audit.ActionBankingDecided, EntityID: id, ActorID: adminID, Detail: decision})
	return nil
}

// ListBanking returns a user's bank account submissions.
func (s *VerificationService) ListBanking(ctx context.Context, userID uuid.UUID) ([]*models.BankingInfo, error) {
	return s.store.Banking().ListByUser(ctx, userID)
}

type decideFunc func(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error

func (s *VerificationService) decideReview(ctx context.Context, decide decideFunc, id uuid.UUID, decision, reason string, adminID uuid.UUID) error {
	var toStatus string
	switch decision {
	case models.ReviewAccepted:
		toStatus = models.ReviewAccepted
	case models.ReviewRejected:
		if reason == "" {
			return ErrRejectionReasonRequired
		}
		toStatus = models.ReviewRejected
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}

	err := decide(ctx, id, models.ReviewPending, toStatus, reason, adminID, s.nowFn())
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrInvalidTransition
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
