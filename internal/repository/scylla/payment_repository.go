package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"trust-service/internal/models"
	"trust-service/internal/repository"
)

type paymentRepository struct {
	client *Client
}

func (r *paymentRepository) Create(ctx context.Context, p *models.PaymentRequest) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO payment_requests
			(id, user_id, amount, currency, description, fingerprint,
			 authority, redirect_url, reference_id, status, created_at,
			 verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Amount, p.Currency, p.Description, p.Fingerprint,
		p.Authority, p.RedirectURL, p.ReferenceID, p.Status, p.CreatedAt,
		timeVal(p.VerifiedAt))
	batch.Query(`
		INSERT INTO payment_by_fingerprint (user_id, fingerprint, created_at, id)
		VALUES (?, ?, ?, ?)`,
		p.UserID, p.Fingerprint, p.CreatedAt, p.ID)
	if p.Authority != "" {
		batch.Query(`
			INSERT INTO payment_by_authority (authority, id) VALUES (?, ?)`,
			p.Authority, p.ID)
	}

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var (
		p          models.PaymentRequest
		verifiedAt time.Time
	)
	err := r.client.Session.Query(`
		SELECT id, user_id, amount, currency, description, fingerprint,
		       authority, redirect_url, reference_id, status, created_at,
		       verified_at
		FROM payment_requests WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Description,
			&p.Fingerprint, &p.Authority, &p.RedirectURL, &p.ReferenceID,
			&p.Status, &p.CreatedAt, &verifiedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	p.VerifiedAt = timePtr(verifiedAt)
	return &p, nil
}

func (r *paymentRepository) GetByAuthority(ctx context.Context, authority string) (*models.PaymentRequest, error) {
	var id uuid.UUID
	err := r.client.Session.Query(`
		SELECT id FROM payment_by_authority WHERE authority = ?`, authority).
		WithContext(ctx).
		Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up payment by authority: %w", err)
	}
	return r.GetByID(ctx, id)
}

// FindActiveByFingerprint returns the newest non-final payment with the
// given fingerprint created at or after since, or ErrNotFound.
func (r *paymentRepository) FindActiveByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string, since time.Time) (*models.PaymentRequest, error) {
	iter := r.client.Session.Query(`
		SELECT id FROM payment_by_fingerprint
		WHERE user_id = ? AND fingerprint = ? AND created_at >= ?`,
		userID, fingerprint, since).
		WithContext(ctx).
		Iter()

	var ids []uuid.UUID
	var id uuid.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to look up payment by fingerprint: %w", err)
	}

	for _, id := range ids {
		p, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !p.IsFinal() {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepository) Transition(ctx context.Context, id uuid.UUID, fromStatus, toStatus, referenceID string, at time.Time) error {
	applied, err := r.client.Session.Query(`
		UPDATE payment_requests SET status = ?, reference_id = ?, verified_at = ?
		WHERE id = ? IF status = ?`,
		toStatus, referenceID, at, id, fromStatus).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to transition payment request: %w", err)
	}
	if !applied {
		return decideConflict(ctx, r.client, "payment_requests", id)
	}
	return nil
}
