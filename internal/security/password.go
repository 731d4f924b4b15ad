// Package security hashes and checks account passwords with bcrypt.
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit; longer passwords are rejected,
// never truncated.
const MaxPasswordBytes = 72

var ErrMismatch = errors.New("password mismatch")

type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher returns a Hasher for cost. Zero means bcrypt.DefaultCost;
// anything out of bcrypt's range is clamped.
func NewHasher(cost int) *Hasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}

	// compared against for unknown usernames so both login failures cost
	// one bcrypt comparison at the configured cost
	dummy, _ := bcrypt.GenerateFromPassword([]byte("accounthub-dummy-password"), cost)

	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Cost() int { return h.cost }

func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// Verify returns nil on a match, ErrMismatch on a wrong password, and any
// other error for a malformed stored hash.
func (h *Hasher) Verify(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// VerifyDummy burns the same work as Verify against a fixed hash.
func (h *Hasher) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}

// NeedsRehash reports whether hash was made with a different cost.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost != h.cost
}

func IsPasswordTooLong(err error) bool {
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}
