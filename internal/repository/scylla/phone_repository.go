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

type phoneRepository struct {
	client *Client
}

func (r *phoneRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error) {
	var (
		v                                     models.PhoneVerification
		codeExpires, lastSent, blocked, verAt time.Time
	)

	err := r.client.Session.Query(`
		SELECT user_id, phone_number, code_hash, code_salt, code_expires_at,
		       last_code_sent_at, failed_attempts, blocked_until, is_verified,
		       verified_at, version
		FROM phone_verifications WHERE user_id = ?`, userID).
		WithContext(ctx).
		Scan(&v.UserID, &v.PhoneNumber, &v.CodeHash, &v.CodeSalt, &codeExpires,
			&lastSent, &v.FailedAttempts, &blocked, &v.IsVerified, &verAt, &v.Version)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get phone verification: %w", err)
	}

	v.CodeExpiresAt = timePtr(codeExpires)
	v.LastCodeSentAt = timePtr(lastSent)
	v.BlockedUntil = timePtr(blocked)
	v.VerifiedAt = timePtr(verAt)
	return &v, nil
}

func (r *phoneRepository) Save(ctx context.Context, v *models.PhoneVerification, expectedVersion int64) error {
	newVersion := expectedVersion + 1

	if expectedVersion == 0 {
		applied, err := r.client.Session.Query(`
			INSERT INTO phone_verifications
				(user_id, phone_number, code_hash, code_salt, code_expires_at,
				 last_code_sent_at, failed_attempts, blocked_until, is_verified,
				 verified_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			v.UserID, v.PhoneNumber, v.CodeHash, v.CodeSalt, timeVal(v.CodeExpiresAt),
			timeVal(v.LastCodeSentAt), v.FailedAttempts, timeVal(v.BlockedUntil),
			v.IsVerified, timeVal(v.VerifiedAt), newVersion).
			WithContext(ctx).
			MapScanCAS(map[string]interface{}{})
		if err != nil {
			return fmt.Errorf("failed to create phone verification: %w", err)
		}
		if !applied {
			return repository.ErrAlreadyExists
		}
		v.Version = newVersion
		return nil
	}

	applied, err := r.client.Session.Query(`
		UPDATE phone_verifications SET
			phone_number = ?, code_hash = ?, code_salt = ?, code_expires_at = ?,
			last_code_sent_at = ?, failed_attempts = ?, blocked_until = ?,
			is_verified = ?, verified_at = ?, version = ?
		WHERE user_id = ? IF version = ?`,
		v.PhoneNumber, v.CodeHash, v.CodeSalt, timeVal(v.CodeExpiresAt),
		timeVal(v.LastCodeSentAt), v.FailedAttempts, timeVal(v.BlockedUntil),
		v.IsVerified, timeVal(v.VerifiedAt), newVersion,
		v.UserID, expectedVersion).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to update phone verification: %w", err)
	}
	if !applied {
		return repository.ErrVersionConflict
	}
	v.Version = newVersion
	return nil
}
