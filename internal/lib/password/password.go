package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrHashing = errors.New("failed to hash password")

// Hasher wraps bcrypt with a fixed work factor.
type Hasher struct {
	cost int
}

func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	return &Hasher{cost: cost}, nil
}

func (h *Hasher) Hash(plain string) (string, error) {
	const op = "password.Hash"

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrHashing, err)
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash is a mismatch.
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
