package scylla

import (
	"context"
	"time"

	"trust-service/internal/repository"
)

// Store bundles the scylla-backed repositories.
//
// Schema (keyspace "trust"):
//
//	phone_verifications(user_id PK, phone_number, code_hash, code_salt,
//	    code_expires_at, last_code_sent_at, failed_attempts,
//	    blocked_until, is_verified, verified_at, version)
//	identity_credentials(id PK, user_id, national_number, front_image_ref,
//	    back_image_ref, status, rejection_notes, reviewed_by, reviewed_at,
//	    created_at)
//	identity_by_user(user_id PK, created_at CLUSTERING DESC, id)
//	banking_info(id PK, user_id, card_number_enc, sheba_enc, key_id,
//	    card_last4, account_holder, bank_name, status, rejection_notes,
//	    reviewed_by, reviewed_at, created_at)
//	banking_by_user(user_id PK, created_at CLUSTERING, id)
//	wallets(id PK, user_id, balance, balance_updated_at, created_at, version)
//	wallet_by_user(user_id PK, wallet_id)
//	wallet_transactions(wallet_id PK, created_at CLUSTERING DESC, id,
//	    amount, direction, tag, description, status, verified_at,
//	    verified_by)
//	withdraw_requests(id PK, wallet_id, user_id, banking_info_id, amount,
//	    status, rejection_reason, processed_by, processed_at, created_at)
//	withdrawals_by_wallet(wallet_id PK, created_at CLUSTERING DESC, id)
//	payment_requests(id PK, user_id, amount, currency, description,
//	    fingerprint, authority, redirect_url, reference_id, status,
//	    created_at, verified_at)
//	payment_by_authority(authority PK, id)
//	payment_by_fingerprint(user_id, fingerprint, created_at CLUSTERING
//	    DESC, id) with partition key (user_id, fingerprint)
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) PhoneVerifications() repository.PhoneVerificationRepository {
	return &phoneRepository{client: s.client}
}

func (s *Store) Identities() repository.IdentityRepository {
	return &identityRepository{client: s.client}
}

func (s *Store) Banking() repository.BankingRepository {
	return &bankingRepository{client: s.client}
}

func (s *Store) Wallets() repository.WalletRepository {
	return &walletRepository{client: s.client}
}

func (s *Store) Withdrawals() repository.WithdrawRepository {
	return &withdrawRepository{client: s.client}
}

func (s *Store) Payments() repository.PaymentRepository {
	return &paymentRepository{client: s.client}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck()
}

func (s *Store) Close() {
	s.client.Close()
}

// timePtr converts a scanned timestamp into the nullable form the models
// use; scylla returns the zero time for null columns.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
