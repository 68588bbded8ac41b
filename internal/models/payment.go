package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payment statuses. Verified, failed and cancelled are terminal; a
// callback landing on a terminal payment is acknowledged without effect.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentVerified  = "verified"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
)

// PaymentRequest is an intent to receive money through the external
// gateway. Authority is the gateway-issued opaque id used to correlate
// the callback.
type PaymentRequest struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description,omitempty"`
	Fingerprint string     `json:"-"`
	Authority   string     `json:"authority,omitempty"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	ReferenceID string     `json:"reference_id,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// PaymentFingerprint identifies a semantic payment intent: the same user
// retrying the same amount and description inside the dedup window maps
// to the same fingerprint.
func PaymentFingerprint(userID uuid.UUID, amount int64, description string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", userID, amount, description))
	return hex.EncodeToString(sum[:])
}

// IsFinal reports whether no further transition is permitted.
func (p *PaymentRequest) IsFinal() bool {
	switch p.Status {
	case PaymentVerified, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}
