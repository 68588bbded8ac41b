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

type walletRepository struct {
	client *Client
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	applied, err := r.client.Session.Query(`
		INSERT INTO wallets (id, user_id, balance, balance_updated_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		wallet.ID, wallet.UserID, wallet.Balance, wallet.BalanceUpdatedAt,
		wallet.CreatedAt, wallet.Version).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	if !applied {
		return repository.ErrAlreadyExists
	}

	err = r.client.Session.Query(`
		INSERT INTO wallet_by_user (user_id, wallet_id) VALUES (?, ?)`,
		wallet.UserID, wallet.ID).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to index wallet by user: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var walletID uuid.UUID
	err := r.client.Session.Query(`
		SELECT wallet_id FROM wallet_by_user WHERE user_id = ?`, userID).
		WithContext(ctx).
		Scan(&walletID)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up wallet by user: %w", err)
	}
	return r.GetByID(ctx, walletID)
}

func (r *walletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.client.Session.Query(`
		SELECT id, user_id, balance, balance_updated_at, created_at, version
		FROM wallets WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&w.ID, &w.UserID, &w.Balance, &w.BalanceUpdatedAt, &w.CreatedAt, &w.Version)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WalletTransaction, error) {
	iter := r.client.Session.Query(`
		SELECT id, wallet_id, amount, direction, tag, description, status,
		       verified_at, verified_by, created_at
		FROM wallet_transactions WHERE wallet_id = ?`, walletID).
		WithContext(ctx).
		Iter()

	var out []*models.WalletTransaction
	for {
		var (
			tx         models.WalletTransaction
			verifiedAt time.Time
		)
		if !iter.Scan(&tx.ID, &tx.WalletID, &tx.Amount, &tx.Direction, &tx.Tag,
			&tx.Description, &tx.Status, &verifiedAt, &tx.VerifiedBy, &tx.CreatedAt) {
			break
		}
		if status != "" && tx.Status != status {
			continue
		}
		tx.VerifiedAt = timePtr(verifiedAt)
		out = append(out, &tx)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return out, nil
}

func (r *walletRepository) GetTransaction(ctx context.Context, walletID, txID uuid.UUID) (*models.WalletTransaction, error) {
	txs, err := r.ListTransactions(ctx, walletID, "")
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if tx.ID == txID {
			return tx, nil
		}
	}
	return nil, repository.ErrNotFound
}

// AppendTransaction claims the wallet version first; the ledger row is
// written only after the balance snapshot is accepted, so a lost race
// never leaves a stray transaction behind.
func (r *walletRepository) AppendTransaction(ctx context.Context, walletID uuid.UUID, tx *models.WalletTransaction, balance int64, expectedVersion int64) error {
	if err := r.casWallet(ctx, walletID, balance, expectedVersion, tx.CreatedAt); err != nil {
		return err
	}

	err := r.client.Session.Query(`
		INSERT INTO wallet_transactions
			(wallet_id, created_at, id, amount, direction, tag, description,
			 status, verified_at, verified_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.WalletID, tx.CreatedAt, tx.ID, tx.Amount, tx.Direction, tx.Tag,
		tx.Description, tx.Status, timeVal(tx.VerifiedAt), tx.VerifiedBy).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to append wallet transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) CommitTransactionStatus(ctx context.Context, walletID, txID uuid.UUID, fromStatus, toStatus string, verifiedBy uuid.UUID, at time.Time, balance int64, expectedVersion int64) error {
	tx, err := r.GetTransaction(ctx, walletID, txID)
	if err != nil {
		return err
	}
	if tx.Status != fromStatus {
		return repository.ErrStatusConflict
	}

	if err := r.casWallet(ctx, walletID, balance, expectedVersion, at); err != nil {
		return err
	}

	err = r.client.Session.Query(`
		UPDATE wallet_transactions SET status = ?, verified_at = ?, verified_by = ?
		WHERE wallet_id = ? AND created_at = ? AND id = ?`,
		toStatus, at, verifiedBy, walletID, tx.CreatedAt, txID).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to commit transaction status: %w", err)
	}
	return nil
}

func (r *walletRepository) casWallet(ctx context.Context, walletID uuid.UUID, balance, expectedVersion int64, at time.Time) error {
	applied, err := r.client.Session.Query(`
		UPDATE wallets SET balance = ?, balance_updated_at = ?, version = ?
		WHERE id = ? IF version = ?`,
		balance, at, expectedVersion+1, walletID, expectedVersion).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if !applied {
		var found uuid.UUID
		err := r.client.Session.Query(`SELECT id FROM wallets WHERE id = ?`, walletID).
			WithContext(ctx).
			Scan(&found)
		if errors.Is(err, gocql.ErrNotFound) {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}
	return nil
}
