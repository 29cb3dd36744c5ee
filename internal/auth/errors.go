package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists signals a registration collision on username or email.
	ErrAlreadyExists = errors.New("auth: already exists")

	// ErrInvalidCredentials covers every login failure. Deliberately
	// uninformative: callers cannot tell a missing user from a bad password
	// or a throttled attempt. The audit log carries the real reason.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrPolicyViolation signals a password rejected by the registration policy.
	ErrPolicyViolation = errors.New("auth: password policy violation")

	// ErrPermissionDenied signals a failed authorization check.
	ErrPermissionDenied = errors.New("auth: permission denied")

	// ErrInvalidToken covers malformed, unsigned, expired, and unknown tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenExpired is an ErrInvalidToken with a known sub-reason; callers
	// may branch on it but receive no further detail.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
