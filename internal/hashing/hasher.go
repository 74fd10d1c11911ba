package hashing

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"repairdesk/internal/config"
)

// Hasher hashes and verifies employee passwords with bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cfg *config.Config) *Hasher {
	cost := cfg.Auth.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of a plaintext password.
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether the plaintext matches the stored hash. bcrypt's
// comparison is constant-time over the derived key.
func (h *Hasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
