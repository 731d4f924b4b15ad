package account

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     *string   `json:"full_name"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UsernameMinLen = 3
	UsernameMaxLen = 64
)

// ValidationError is a field rule that only holds after normalization or
// hashing, so request binding cannot catch it. Field is the wire name.
type ValidationError struct {
	Field   string
	Rule    string
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	ErrNotFound           = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
)

// ErrPasswordTooLong is bcrypt's 72-byte input limit.
var ErrPasswordTooLong error = &ValidationError{
	Field:   "password",
	Rule:    "max",
	Param:   "72",
	Message: "must be at most 72 bytes",
}

type RegisterRequest struct {
	Username string  `json:"username" binding:"required,min=3,max=64"`
	Email    string  `json:"email" binding:"required,email,max=254"`
	FullName *string `json:"full_name" binding:"omitempty,max=200"`
	Password string  `json:"password" binding:"required,min=1,max=72"`
}

// UpdateRequest is a partial update: nil fields are left untouched.
type UpdateRequest struct {
	Username *string `json:"username" binding:"omitempty,min=3,max=64"`
	Email    *string `json:"email" binding:"omitempty,email,max=254"`
	FullName *string `json:"full_name" binding:"omitempty,max=200"`
	Password *string `json:"password" binding:"omitempty,min=1,max=72"`
}

// Patch is what the store applies; the password is already hashed.
type Patch struct {
	Username     *string
	Email        *string
	FullName     *string
	PasswordHash *string
}

func (p Patch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.FullName == nil && p.PasswordHash == nil
}

// Apply merges the patch into a copy of a.
func (p Patch) Apply(a Account, now time.Time) Account {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.FullName != nil {
		fn := *p.FullName
		a.FullName = &fn
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	a.UpdatedAt = now

	return a
}

type ListFilter struct {
	Offset int
	Limit  int
}

// a factory to build an Account from the validated DTO and a password hash
func NewFromRegisterRequest(req RegisterRequest, passwordHash string) Account {
	now := time.Now().UTC()

	var fullName *string
	if req.FullName != nil {
		fn := strings.TrimSpace(*req.FullName)
		fullName = &fn
	}

	return Account{
		ID:           uuid.NewString(),
		Username:     NormalizeUsername(req.Username),
		Email:        NormalizeEmail(req.Email),
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeUsername trims and NFC-normalizes so visually identical names collide.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateUsername checks an already normalized username, so whitespace
// padding cannot satisfy the length rule.
func ValidateUsername(u string) error {
	n := utf8.RuneCountInString(u)
	switch {
	case n == 0:
		return &ValidationError{Field: "username", Rule: "required", Message: "field required"}
	case n < UsernameMinLen:
		return &ValidationError{Field: "username", Rule: "min", Param: strconv.Itoa(UsernameMinLen),
			Message: "must be at least " + strconv.Itoa(UsernameMinLen)}
	case n > UsernameMaxLen:
		return &ValidationError{Field: "username", Rule: "max", Param: strconv.Itoa(UsernameMaxLen),
			Message: "must be at most " + strconv.Itoa(UsernameMaxLen)}
	}
	return nil
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidID reports whether id could name an account. Anything else is simply not found.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
