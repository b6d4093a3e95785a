// Package auth implements the master password policy applied at vault setup.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// MinLength is the shortest accepted master password, in characters.
const MinLength = 12

var (
	// ErrWeakPassword wraps every policy rejection.
	ErrWeakPassword = errors.New("master password does not meet the policy")
	// ErrBreachedPassword is returned when the password appears in a breach corpus.
	ErrBreachedPassword = errors.New("master password appears in a known data breach")
)

// BreachChecker reports how often a password has appeared in breaches.
type BreachChecker interface {
	Check(ctx context.Context, pw string) (HIBPResult, error)
}

// ValidateOptions tunes ValidateMasterPasswordAdvanced.
type ValidateOptions struct {
	// MinZXCVBNScore is the lowest acceptable zxcvbn score (0-4). Zero skips the check.
	MinZXCVBNScore int
	// UserInputs are penalised by the strength estimator, e.g. the owner name.
	UserInputs []string
	// EnableHIBP turns on the breach lookup.
	EnableHIBP bool
	// Breaches is the lookup used when EnableHIBP is set; nil uses the public API.
	Breaches BreachChecker
	// FailOpen accepts the password when the breach lookup itself fails.
	FailOpen bool
}

// DefaultValidateOptions requires a zxcvbn score of 3 and leaves HIBP off.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{MinZXCVBNScore: 3}
}

// ValidateMasterPassword applies the composition rules.
func ValidateMasterPassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinLength {
		return fmt.Errorf("%w: must be at least %d characters long", ErrWeakPassword, MinLength)
	}
	if !hasUpper(pw) {
		return fmt.Errorf("%w: must include an uppercase letter", ErrWeakPassword)
	}
	if !hasDigit(pw) {
		return fmt.Errorf("%w: must include a digit", ErrWeakPassword)
	}
	if !hasSpecial(pw) {
		return fmt.Errorf("%w: must include a special character", ErrWeakPassword)
	}
	return nil
}

// Strength returns the zxcvbn score (0-4) of pw.
func Strength(pw string, userInputs ...string) int {
	return zxcvbn.PasswordStrength(pw, userInputs).Score
}

// ValidateMasterPasswordAdvanced applies the composition rules, the strength
// estimate and, when enabled, the breach lookup, in that order.
func ValidateMasterPasswordAdvanced(ctx context.Context, pw string, opts ValidateOptions) error {
	if err := ValidateMasterPassword(pw); err != nil {
		return err
	}

	if opts.MinZXCVBNScore > 0 {
		if score := Strength(pw, opts.UserInputs...); score < opts.MinZXCVBNScore {
			return fmt.Errorf("%w: too easy to guess (strength %d of 4, need %d)", ErrWeakPassword, score, opts.MinZXCVBNScore)
		}
	}

	if !opts.EnableHIBP {
		return nil
	}

	checker := opts.Breaches
	if checker == nil {
		checker = DefaultHIBP
	}
	res, err := checker.Check(ctx, pw)
	if err != nil {
		if opts.FailOpen {
			return nil
		}
		return fmt.Errorf("breach check: %w", err)
	}
	if res.Found {
		return fmt.Errorf("%w (seen %d times)", ErrBreachedPassword, res.Count)
	}
	return nil
}

func hasUpper(s string) bool {
	return strings.IndexFunc(s, unicode.IsUpper) >= 0
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasSpecial(s string) bool {
	return strings.ContainsAny(s, specialChars)
}
