package auth

import (
	"cim/errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Credentials struct {
	Username string `validate:"omitempty,max=32"`
	Password string `validate:"max=256"`
}

func ValidateCredentials(c Credentials) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidCredentials, err)
	}
	if !isUsername(c.Username) {
		return fmt.Errorf("%w: username %q", errors.ErrInvalidCredentials, c.Username)
	}
	if !utf8.ValidString(c.Password) {
		return fmt.Errorf("%w: password: %w", errors.ErrInvalidCredentials, errors.ErrInvalidEncoding)
	}
	return nil
}

// ValidateUsername checks a nickname before it is sent in a NICK command.
// Unlike the login name, a nickname cannot be empty.
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: username is required", errors.ErrInvalidCredentials)
	}
	return ValidateCredentials(Credentials{Username: name})
}

func ValidateChannel(name string) error {
	if err := validate.Var(name, "required,max=64"); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidChannel, err)
	}
	if !isChannelName(name) {
		return fmt.Errorf("%w: %q", errors.ErrInvalidChannel, name)
	}
	return nil
}

// Commas separate member lists on the wire, so names never carry one.
func isUsername(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

func isChannelName(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
