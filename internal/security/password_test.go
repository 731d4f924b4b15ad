package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("password123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "password123" {
		t.Fatalf("hash must not equal the plain text")
	}

	if err := h.Verify(hash, "password123"); err != nil {
		t.Fatalf("expected matching password, got %v", err)
	}
	if err := h.Verify(hash, "wrongpassword"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if err := h.Verify("not-a-hash", "password123"); err == nil || errors.Is(err, ErrMismatch) {
		t.Fatalf("expected malformed hash error, got %v", err)
	}
}

func TestHash_TooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	if _, err := h.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("72 bytes should hash, got %v", err)
	}
	_, err := h.Hash(strings.Repeat("a", MaxPasswordBytes+1))
	if !IsPasswordTooLong(err) {
		t.Fatalf("expected too long error, got %v", err)
	}
}

func TestNewHasher_CostBounds(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: bcrypt.DefaultCost},
		{in: 1, want: bcrypt.MinCost},
		{in: 11, want: 11},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost(); got != tt.want {
			t.Fatalf("NewHasher(%d).Cost() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	low := NewHasher(bcrypt.MinCost)
	hash, err := low.Hash("pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if low.NeedsRehash(hash) {
		t.Fatalf("same cost must not need rehash")
	}
	if !NewHasher(bcrypt.MinCost + 1).NeedsRehash(hash) {
		t.Fatalf("different cost should need rehash")
	}
	if low.NeedsRehash("garbage") {
		t.Fatalf("unparseable hash is not a rehash candidate")
	}
}
