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

// identityRepository and bankingRepository share the same shape: an
// entity table keyed by id, a by-user lookup table, and a status-guarded
// decision update.

type identityRepository struct {
	client *Client
}

func (r *identityRepository) Create(ctx context.Context, cred *models.IdentityCredential) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO identity_credentials
			(id, user_id, national_number, front_image_ref, back_image_ref,
			 status, rejection_notes, reviewed_by, reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.NationalNumber, cred.FrontImageRef,
		cred.BackImageRef, cred.Status, cred.RejectionNotes, cred.ReviewedBy,
		timeVal(cred.ReviewedAt), cred.CreatedAt)
	batch.Query(`
		INSERT INTO identity_by_user (user_id, created_at, id) VALUES (?, ?, ?)`,
		cred.UserID, cred.CreatedAt, cred.ID)

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create identity credential: %w", err)
	}
	return nil
}

func (r *identityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IdentityCredential, error) {
	var (
		cred       models.IdentityCredential
		reviewedAt time.Time
	)
	err := r.client.Session.Query(`
		SELECT id, user_id, national_number, front_image_ref, back_image_ref,
		       status, rejection_notes, reviewed_by, reviewed_at, created_at
		FROM identity_credentials WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&cred.ID, &cred.UserID, &cred.NationalNumber, &cred.FrontImageRef,
			&cred.BackImageRef, &cred.Status, &cred.RejectionNotes,
			&cred.ReviewedBy, &reviewedAt, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity credential: %w", err)
	}
	cred.ReviewedAt = timePtr(reviewedAt)
	return &cred, nil
}

func (r *identityRepository) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.IdentityCredential, error) {
	var id uuid.UUID
	err := r.client.Session.Query(`
		SELECT id FROM identity_by_user WHERE user_id = ? LIMIT 1`, userID).
		WithContext(ctx).
		Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up identity by user: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *identityRepository) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error {
	applied, err := r.client.Session.Query(`
		UPDATE identity_credentials SET
			status = ?, rejection_notes = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ? IF status = ?`,
		toStatus, notes, reviewedBy, at, id, fromStatus).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to decide identity credential: %w", err)
	}
	if !applied {
		return decideConflict(ctx, r.client, "identity_credentials", id)
	}
	return nil
}

type bankingRepository struct {
	client *Client
}

func (r *bankingRepository) Create(ctx context.Context, info *models.BankingInfo) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO banking_info
			(id, user_id, card_number_enc, sheba_enc, key_id, card_last4,
			 account_holder, bank_name, status, rejection_notes, reviewed_by,
			 reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.UserID, info.CardNumberEncrypted, info.ShebaEncrypted,
		info.EncryptionKeyID, info.CardNumberLast4, info.AccountHolderName,
		info.BankName, info.Status, info.RejectionNotes, info.ReviewedBy,
		timeVal(info.ReviewedAt), info.CreatedAt)
	batch.Query(`
		INSERT INTO banking_by_user (user_id, created_at, id) VALUES (?, ?, ?)`,
		info.UserID, info.CreatedAt, info.ID)

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create banking info: %w", err)
	}
	return nil
}

func (r *bankingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankingInfo, error) {
	var (
		info       models.BankingInfo
		reviewedAt time.Time
	)
	err := r.client.Session.Query(`
		SELECT id, user_id, card_number_enc, sheba_enc, key_id, card_last4,
		       account_holder, bank_name, status, rejection_notes, reviewed_by,
		       reviewed_at, created_at
		FROM banking_info WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&info.ID, &info.UserID, &info.CardNumberEncrypted, &info.ShebaEncrypted,
			&info.EncryptionKeyID, &info.CardNumberLast4, &info.AccountHolderName,
			&info.BankName, &info.Status, &info.RejectionNotes, &info.ReviewedBy,
			&reviewedAt, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get banking info: %w", err)
	}
	info.ReviewedAt = timePtr(reviewedAt)
	return &info, nil
}

func (r *bankingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.BankingInfo, error) {
	iter := r.client.Session.Query(`
		SELECT id FROM banking_by_user WHERE user_id = ?`, userID).
		WithContext(ctx).
		Iter()

	var ids []uuid.UUID
	var id uuid.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list banking info: %w", err)
	}

	out := make([]*models.BankingInfo, 0, len(ids))
	for _, id := range ids {
		info, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *bankingRepository) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error {
	applied, err := r.client.Session.Query(`
		UPDATE banking_info SET
			status = ?, rejection_notes = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ? IF status = ?`,
		toStatus, notes, reviewedBy, at, id, fromStatus).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to decide banking info: %w", err)
	}
	if !applied {
		return decideConflict(ctx, r.client, "banking_info", id)
	}
	return nil
}

// decideConflict distinguishes a missing row from a status race after a
// failed conditional decision.
func decideConflict(ctx context.Context, c *Client, table string, id uuid.UUID) error {
	var found uuid.UUID
	err := c.Session.Query(fmt.Sprintf(`SELECT id FROM %s WHERE id = ?`, table), id).
		WithContext(ctx).
		Scan(&found)
	if errors.Is(err, gocql.ErrNotFound) {
		return repository.ErrNotFound
	}
	return repository.ErrStatusConflict
}
