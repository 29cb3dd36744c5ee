package auth

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 10
	minStrengthScore  = 0.55
)

var weakSubstrings = []string{"password", "1234", "qwer", "abcd"}

// PasswordStrength returns a naive score in [0,1], weighing length against
// character-class variety and penalizing common weak substrings. Advisory
// everywhere except registration, where EnforcePolicy gates on it.
func PasswordStrength(password string) float64 {
	lengthScore := float64(len(password)) / 16
	if lengthScore > 1 {
		lengthScore = 1
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	variety := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			variety++
		}
	}
	varietyScore := float64(variety) / 4

	penalty := 0.0
	lowered := strings.ToLower(password)
	for _, weak := range weakSubstrings {
		if strings.Contains(lowered, weak) {
			penalty = 0.25
			break
		}
	}

	score := 0.6*lengthScore + 0.4*varietyScore - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// EnforcePolicy is the hard gate applied at registration.
func EnforcePolicy(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: too short (min %d)", ErrPolicyViolation, minPasswordLength)
	}
	if PasswordStrength(password) < minStrengthScore {
		return fmt.Errorf("%w: too weak, add length and variety", ErrPolicyViolation)
	}
	return nil
}
