package models

import (
	"time"

	"github.com/google/uuid"
)

// Review statuses shared by admin-reviewed artifacts. Accepted and
// rejected are terminal; a rejected artifact is resubmitted as a new
// record, never flipped back to pending.
const (
	ReviewPending  = "pending_verification"
	ReviewAccepted = "accepted"
	ReviewRejected = "rejected"
)

// PhoneVerification tracks the one-time-code lifecycle for a user's phone
// number. The code itself is stored only as an argon2id hash.
type PhoneVerification struct {
	UserID         uuid.UUID  `json:"user_id"`
	PhoneNumber    string     `json:"phone_number"`
	CodeHash       string     `json:"-"`
	CodeSalt       string     `json:"-"`
	CodeExpiresAt  *time.Time `json:"code_expires_at,omitempty"`
	LastCodeSentAt *time.Time `json:"last_code_sent_at,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	BlockedUntil   *time.Time `json:"blocked_until,omitempty"`
	IsVerified     bool       `json:"is_verified"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`

	// Version guards conditional updates; every persisted write bumps it.
	Version int64 `json:"-"`
}

// HasPendingCode reports whether a code has been issued and not yet
// consumed, expired or cleared.
func (v *PhoneVerification) HasPendingCode() bool {
	return v.CodeHash != "" && v.CodeExpiresAt != nil
}

// IsBlocked reports whether the lockout window is still running at now.
func (v *PhoneVerification) IsBlocked(now time.Time) bool {
	return v.BlockedUntil != nil && now.Before(*v.BlockedUntil)
}

// ClearCode drops the issued code without touching the attempt counter.
func (v *PhoneVerification) ClearCode() {
	v.CodeHash = ""
	v.CodeSalt = ""
	v.CodeExpiresAt = nil
}

// IdentityCredential is a user's national identity submission awaiting
// admin review.
type IdentityCredential struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	NationalNumber string     `json:"national_number"`
	FrontImageRef  string     `json:"front_image_ref"`
	BackImageRef   string     `json:"back_image_ref"`
	Status         string     `json:"status"`
	RejectionNotes string     `json:"rejection_notes,omitempty"`
	ReviewedBy     uuid.UUID  `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BankingInfo is one bank account submission. A user may hold several;
// the first accepted record is the one withdrawals pay out to. Card and
// sheba numbers are stored encrypted.
type BankingInfo struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	CardNumberEncrypted string     `json:"-"`
	ShebaEncrypted      string     `json:"-"`
	EncryptionKeyID     string     `json:"-"`
	CardNumberLast4     string     `json:"card_number_last4"`
	AccountHolderName   string     `json:"account_holder_name"`
	BankName            string     `json:"bank_name"`
	Status              string     `json:"status"`
	RejectionNotes      string     `json:"rejection_notes,omitempty"`
	ReviewedBy          uuid.UUID  `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
