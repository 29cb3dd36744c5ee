package auth

import (
	"crypto/rand"
	"fmt"
	"time"
)

// EntropySource supplies random bytes. Swappable for deterministic tests.
type EntropySource func(n int) ([]byte, error)

// DefaultEntropy reads from crypto/rand.
func DefaultEntropy(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return buf, nil
}

func systemNow() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a time source pinned to the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
