// Package otp generates and checks the short numeric codes used for
// phone verification. Codes are deliberately low entropy; brute forcing
// is defended by the attempt counter and cooldown in the verification
// service, not by the code space.
package otp

import (
	"crypto/subtle"
	"math/rand/v2"
	"strconv"
	"time"
)

// CodeLength is the number of digits in a generated code.
const CodeLength = 5

// GenerateCode returns a uniformly distributed 5 digit code as a string,
// zero padding excluded (range 10000-99999).
func GenerateCode() string {
	return strconv.Itoa(10000 + rand.IntN(90000))
}

// IsExpired reports whether a code issued with the given expiry is stale
// at now. A nil expiry means no code is outstanding, which counts as
// expired.
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.After(*expiresAt)
}

// Equal compares a candidate against the issued code in constant time.
func Equal(issued, candidate string) bool {
	if len(issued) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(issued), []byte(candidate)) == 1
}
