// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password the strength policy accepts.
const MinPasswordLength = 8

// Default admin password generation.
const (
	DefaultPasswordLength  = 18
	defaultPasswordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"
)

// ValidatePasswordStrength enforces length and character-class rules.
// A failing password yields ErrWeakPassword with the unmet rules in the
// "missing" context field.
func ValidatePasswordStrength(password string) error {
	var missing []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		missing = append(missing, "length")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	if !upper {
		missing = append(missing, "uppercase")
	}
	if !lower {
		missing = append(missing, "lowercase")
	}
	if !digit {
		missing = append(missing, "digit")
	}
	if !symbol {
		missing = append(missing, "symbol")
	}

	if len(missing) == 0 {
		return nil
	}
	return oops.Code("AUTH_WEAK_PASSWORD").
		With("missing", missing).
		Wrapf(ErrWeakPassword, "password needs at least %d characters with uppercase, lowercase, digit and symbol (missing: %s)",
			MinPasswordLength, strings.Join(missing, ", "))
}

// GenerateDefaultPassword returns a random password of DefaultPasswordLength
// characters drawn with crypto/rand. The result always satisfies
// ValidatePasswordStrength.
func GenerateDefaultPassword() (string, error) {
	for {
		password, err := randomString(DefaultPasswordLength, defaultPasswordCharset)
		if err != nil {
			return "", err
		}
		if ValidatePasswordStrength(password) == nil {
			return password, nil
		}
	}
}

func randomString(n int, charset string) (string, error) {
	limit := big.NewInt(int64(len(charset)))
	var b strings.Builder
	b.Grow(n)
	for range n {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("AUTH_PASSWORD_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		b.WriteByte(charset[idx.Int64()])
	}
	return b.String(), nil
}
