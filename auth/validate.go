package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("contaconmigo/auth: invalid email address")
	// ErrWeakPassword is returned for a password failing CheckPassword.
	ErrWeakPassword = errors.New("contaconmigo/auth: password too weak")
)

// validate applies the same "email" rule gin binding uses server side.
var validate = validator.New()

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// ValidateEmail checks that email is present and shaped like an address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("contaconmigo/auth: %w", contaconmigo.ErrEmptyEmail)
	}
	if err := validate.Var(email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// CheckPassword enforces the sign-up policy: at least MinPasswordLength
// characters with an upper-case letter, a lower-case letter, a digit and
// one of !@#$%^&*(),.?":{}|<>.
func CheckPassword(password string) error {
	if password == "" {
		return fmt.Errorf("contaconmigo/auth: %w", contaconmigo.ErrEmptyPassword)
	}

	var missing []string
	if len([]rune(password)) < MinPasswordLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper {
		missing = append(missing, "an upper-case letter")
	}
	if !lower {
		missing = append(missing, "a lower-case letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !special {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(missing, ", "))
	}
	return nil
}
