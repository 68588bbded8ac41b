// Package memory implements the repository contracts with in-process
// maps. It honors the same conditional-update semantics as the scylla
// backend (version and status guards), which makes it both the dev
// backend and the fixture the service tests run against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/models"
	"trust-service/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	phones        map[uuid.UUID]*models.PhoneVerification
	identities    map[uuid.UUID]*models.IdentityCredential
	banking       map[uuid.UUID]*models.BankingInfo
	wallets       map[uuid.UUID]*models.Wallet
	walletsByUser map[uuid.UUID]uuid.UUID
	transactions  map[uuid.UUID][]*models.WalletTransaction
	withdrawals   map[uuid.UUID]*models.WithdrawRequest
	payments      map[uuid.UUID]*models.PaymentRequest
	byAuthority   map[string]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		phones:        make(map[uuid.UUID]*models.PhoneVerification),
		identities:    make(map[uuid.UUID]*models.IdentityCredential),
		banking:       make(map[uuid.UUID]*models.BankingInfo),
		wallets:       make(map[uuid.UUID]*models.Wallet),
		walletsByUser: make(map[uuid.UUID]uuid.UUID),
		transactions:  make(map[uuid.UUID][]*models.WalletTransaction),
		withdrawals:   make(map[uuid.UUID]*models.WithdrawRequest),
		payments:      make(map[uuid.UUID]*models.PaymentRequest),
		byAuthority:   make(map[string]uuid.UUID),
	}
}

func (s *Store) PhoneVerifications() repository.PhoneVerificationRepository { return (*phoneRepo)(s) }
func (s *Store) Identities() repository.IdentityRepository                 { return (*identityRepo)(s) }
func (s *Store) Banking() repository.BankingRepository                     { return (*bankingRepo)(s) }
func (s *Store) Wallets() repository.WalletRepository                      { return (*walletRepo)(s) }
func (s *Store) Withdrawals() repository.WithdrawRepository                { return (*withdrawRepo)(s) }
func (s *Store) Payments() repository.PaymentRepository                    { return (*paymentRepo)(s) }

func (s *Store) HealthCheck(ctx context.Context) error { return nil }

func (s *Store) Close() {}

// --- phone verifications ---

type phoneRepo Store

func (r *phoneRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.phones[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *phoneRepo) Save(ctx context.Context, v *models.PhoneVerification, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.phones[v.UserID]
	if expectedVersion == 0 {
		if exists {
			return repository.ErrAlreadyExists
		}
	} else {
		if !exists {
			return repository.ErrNotFound
		}
		if current.Version != expectedVersion {
			return repository.ErrVersionConflict
		}
	}

	cp := *v
	cp.Version = expectedVersion + 1
	r.phones[v.UserID] = &cp
	v.Version = cp.Version
	return nil
}

// --- identity credentials ---

type identityRepo Store

func (r *identityRepo) Create(ctx context.Context, cred *models.IdentityCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.identities[cred.ID]; exists {
		return repository.ErrAlreadyExists
	}
	cp := *cred
	r.identities[cred.ID] = &cp
	return nil
}

func (r *identityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.IdentityCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (r *identityRepo) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.IdentityCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *models.IdentityCredential
	for _, cred := range r.identities {
		if cred.UserID != userID {
			continue
		}
		if latest == nil || cred.CreatedAt.After(latest.CreatedAt) {
			latest = cred
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *identityRepo) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cred.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	cred.Status = toStatus
	cred.RejectionNotes = notes
	cred.ReviewedBy = reviewedBy
	reviewedAt := at
	cred.ReviewedAt = &reviewedAt
	return nil
}

// --- banking info ---

type bankingRepo Store

func (r *bankingRepo) Create(ctx context.Context, info *models.BankingInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.banking[info.ID]; exists {
		return repository.ErrAlreadyExists
	}
	cp := *info
	r.banking[info.ID] = &cp
	return nil
}

func (r *bankingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BankingInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.banking[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (r *bankingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.BankingInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.BankingInfo
	for _, info := range r.banking {
		if info.UserID == userID {
			cp := *info
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *bankingRepo) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, notes string, reviewedBy uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.banking[id]
	if !ok {
		return repository.ErrNotFound
	}
	if info.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	info.Status = toStatus
	info.RejectionNotes = notes
	info.ReviewedBy = reviewedBy
	reviewedAt := at
	info.ReviewedAt = &reviewedAt
	return nil
}

// --- wallets and transactions ---

type walletRepo Store

func (r *walletRepo) Create(ctx context.Context, w *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.walletsByUser[w.UserID]; exists {
		return repository.ErrAlreadyExists
	}
	cp := *w
	cp.Version = 1
	r.wallets[w.ID] = &cp
	r.walletsByUser[w.UserID] = w.ID
	w.Version = 1
	return nil
}

func (r *walletRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.walletsByUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.wallets[id]
	return &cp, nil
}

func (r *walletRepo) GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WalletTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.WalletTransaction
	for _, tx := range r.transactions[walletID] {
		if status == "" || tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *walletRepo) GetTransaction(ctx context.Context, walletID, txID uuid.UUID) (*models.WalletTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.transactions[walletID] {
		if tx.ID == txID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *walletRepo) AppendTransaction(ctx context.Context, walletID uuid.UUID, tx *models.WalletTransaction, balance int64, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	if w.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	cp := *tx
	r.transactions[walletID] = append(r.transactions[walletID], &cp)
	w.Balance = balance
	w.BalanceUpdatedAt = cp.CreatedAt
	w.Version++
	return nil
}

func (r *walletRepo) CommitTransactionStatus(ctx context.Context, walletID, txID uuid.UUID, fromStatus, toStatus string, verifiedBy uuid.UUID, at time.Time, balance int64, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	if w.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	var target *models.WalletTransaction
	for _, tx := range r.transactions[walletID] {
		if tx.ID == txID {
			target = tx
			break
		}
	}
	if target == nil {
		return repository.ErrNotFound
	}
	if target.Status != fromStatus {
		return repository.ErrStatusConflict
	}

	target.Status = toStatus
	target.VerifiedBy = verifiedBy
	verifiedAt := at
	target.VerifiedAt = &verifiedAt
	w.Balance = balance
	w.BalanceUpdatedAt = at
	w.Version++
	return nil
}

// --- withdrawals ---

type withdrawRepo Store

func (r *withdrawRepo) Create(ctx context.Context, req *models.WithdrawRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.withdrawals[req.ID]; exists {
		return repository.ErrAlreadyExists
	}
	cp := *req
	r.withdrawals[req.ID] = &cp
	return nil
}

func (r *withdrawRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *withdrawRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, status string) ([]*models.WithdrawRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.WithdrawRequest
	for _, req := range r.withdrawals {
		if req.WalletID != walletID {
			continue
		}
		if status == "" || req.Status == status {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *withdrawRepo) Decide(ctx context.Context, id uuid.UUID, fromStatus, toStatus, reason string, processedBy uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.withdrawals[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	req.Status = toStatus
	req.RejectionReason = reason
	req.ProcessedBy = processedBy
	processedAt := at
	req.ProcessedAt = &processedAt
	return nil
}

// --- payments ---

type paymentRepo Store

func (r *paymentRepo) Create(ctx context.Context, p *models.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.ID]; exists {
		return repository.ErrAlreadyExists
	}
	if p.Authority != "" {
		if _, exists := r.byAuthority[p.Authority]; exists {
			return repository.ErrAlreadyExists
		}
	}
	cp := *p
	r.payments[p.ID] = &cp
	if p.Authority != "" {
		r.byAuthority[p.Authority] = p.ID
	}
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *paymentRepo) GetByAuthority(ctx context.Context, authority string) (*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAuthority[authority]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.payments[id]
	return &cp, nil
}

func (r *paymentRepo) FindActiveByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string, since time.Time) (*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *models.PaymentRequest
	for _, p := range r.payments {
		if p.UserID != userID || p.Fingerprint != fingerprint {
			continue
		}
		if p.CreatedAt.Before(since) {
			continue
		}
		switch p.Status {
		case models.PaymentPending, models.PaymentPaid, models.PaymentVerified:
		default:
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (r *paymentRepo) Transition(ctx context.Context, id uuid.UUID, fromStatus, toStatus, referenceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	p.Status = toStatus
	if referenceID != "" {
		p.ReferenceID = referenceID
	}
	if toStatus == models.PaymentVerified {
		verifiedAt := at
		p.VerifiedAt = &verifiedAt
	}
	return nil
}
