package account

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername_ComposesAndTrims(t *testing.T) {
	decomposed := "  jose\u0301 "
	assert.Equal(t, "jos\u00e9", NormalizeUsername(decomposed))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a.b@example.com", NormalizeEmail(" A.B@Example.COM "))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("3f1c1f5e-8a0b-4f6f-9b1e-2a3c4d5e6f70"))
	assert.False(t, ValidID("42"))
	assert.False(t, ValidID(""))
}

func TestPatchApply_LeavesAbsentFieldsUntouched(t *testing.T) {
	name := "Old Name"
	a := Account{ID: "id", Username: "alice", Email: "alice@example.com", FullName: &name, PasswordHash: "h1"}

	newName := "New Name"
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Patch{FullName: &newName}.Apply(a, now)

	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "h1", got.PasswordHash)
	assert.Equal(t, "New Name", *got.FullName)
	assert.Equal(t, now, got.UpdatedAt)

	// the original is not aliased
	assert.Equal(t, "Old Name", *a.FullName)
}

func TestPatchIsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	email := "x@example.com"
	assert.False(t, Patch{Email: &email}.IsEmpty())
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		in   string
		rule string
	}{
		{in: NormalizeUsername("     "), rule: "required"},
		{in: NormalizeUsername("  ab "), rule: "min"},
		{in: strings.Repeat("u", UsernameMaxLen+1), rule: "max"},
		{in: NormalizeUsername(" abc "), rule: ""},
		// three runes, six bytes
		{in: "жжж", rule: ""},
	}

	for _, tt := range tests {
		err := ValidateUsername(tt.in)
		if tt.rule == "" {
			assert.NoError(t, err, "%q", tt.in)
			continue
		}
		var ve *ValidationError
		if assert.ErrorAs(t, err, &ve, "%q", tt.in) {
			assert.Equal(t, "username", ve.Field)
			assert.Equal(t, tt.rule, ve.Rule)
		}
	}
}
