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

type withdrawRepository struct {
	client *Client
}

func (r *withdrawRepository) Create(ctx context.Context, req *models.WithdrawRequest) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO withdraw_requests
			(id, wallet_id, user_id, banking_info_id, amount, status,
			 rejection_reason, processed_by, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.WalletID, req.UserID, req.BankingInfoID, req.Amount,
		req.Status, req.RejectionReason, req.ProcessedBy,
		timeVal(req.ProcessedAt), req.CreatedAt)
	batch.Query(`
		INSERT INTO withdrawals_by_wallet (wallet_id, created_at, id) VALUES (?, ?, ?)`,
		req.WalletID, req.CreatedAt, req.ID)

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create withdraw request: %w", err)
	}
	return nil
}

func (r *withdrawRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawRequest, error) {
	var (
		req         models.WithdrawRequest
		processedAt time.Time
	)
	err := r.client.Session.Query(`
		SELECT id, wallet_id, user_id, banking_info_id, amount, status,
		       rejection_reason, processed_by, processed_at, created_at
		FROM withdraw_requests WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&req.ID, &req.WalletID, &req.UserID, &req.BankingInfoID,
			&req.Amount, &req.Status, &req.RejectionReason, &req.ProcessedBy,
			&processedAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get withdraw request: %w", err)
	}
	req.ProcessedAt = timePtr(processedAt)
	return &req, nil
}

func (r *withdrawRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WithdrawRequest, error) {
	iter := r.client.Session.Query(`
		SELECT id FROM withdrawals_by_wallet WHERE wallet_id = ?`, walletID).
		WithContext(ctx).
		Iter()

	var ids []uuid.UUID
	var id uuid.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	out := make([]*models.WithdrawRequest, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (r *withdrawRepository) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, reason string, processedBy uuid.UUID, at time.Time) error {
	applied, err := r.client.Session.Query(`
		UPDATE withdraw_requests SET
			status = ?, rejection_reason = ?, processed_by = ?, processed_at = ?
		WHERE id = ? IF status = ?`,
		toStatus, reason, processedBy, at, id, fromStatus).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to decide withdraw request: %w", err)
	}
	if !applied {
		return decideConflict(ctx, r.client, "withdraw_requests", id)
	}
	return nil
}
