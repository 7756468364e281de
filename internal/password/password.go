// Package password hashes user secrets with bcrypt and verifies them against
// stored hashes. The salt is generated per call and embedded in the hash.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the longest secret bcrypt can hash without truncation.
const MaxLength = 72

var (
	ErrEmpty    = errors.New("password: empty secret")
	ErrTooLong  = fmt.Errorf("password: secret longer than %d bytes", MaxLength)
	ErrMismatch = errors.New("password: mismatch")
	// ErrCorruptHash means the stored hash could not be parsed. Callers must
	// treat it as a failed verification.
	ErrCorruptHash = errors.New("password: corrupt hash")
)

type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher. Costs outside bcrypt's range fall back
// to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmpty
	}
	if len(secret) > MaxLength {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(b), nil
}

// Check compares secret against hash in constant time. It returns nil on a
// match, ErrMismatch on a wrong secret and ErrCorruptHash when hash is not a
// bcrypt hash.
func (h *Hasher) Check(secret, hash string) error {
	// bcrypt ignores everything past MaxLength bytes, so a longer secret
	// could match a hash of its prefix.
	if len(secret) > MaxLength {
		return ErrMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
}

func (h *Hasher) Verify(secret, hash string) bool {
	return h.Check(secret, hash) == nil
}
