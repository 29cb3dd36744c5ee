package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algPBKDF2SHA256 = "pbkdf2_sha256"

	// AlgFederated marks accounts authenticated by an external provider.
	// Credentials carrying it never verify, so password login is permanently
	// disabled without a separate flag.
	AlgFederated = "federated"

	defaultIterations = 120_000
	saltLength        = 16
	keyLength         = 32
)

// PasswordCredential is the stored derivation record for one password.
type PasswordCredential struct {
	Algorithm  string
	Iterations int
	Salt       string
	Hash       string
}

// String serializes to the dollar-delimited form algorithm$iterations$salt$hash.
// All fields are base64url or decimal, so no escaping is needed.
func (c PasswordCredential) String() string {
	return fmt.Sprintf("%s$%d$%s$%s", c.Algorithm, c.Iterations, c.Salt, c.Hash)
}

// ParseCredential reverses PasswordCredential.String.
func ParseCredential(raw string) (PasswordCredential, error) {
	parts := strings.Split(raw, "$")
	if len(parts) != 4 {
		return PasswordCredential{}, fmt.Errorf("%w: malformed credential", ErrInvalidInput)
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil {
		return PasswordCredential{}, fmt.Errorf("%w: credential iterations", ErrInvalidInput)
	}
	return PasswordCredential{
		Algorithm:  parts[0],
		Iterations: iterations,
		Salt:       parts[2],
		Hash:       parts[3],
	}, nil
}

// FederatedCredential returns the sentinel record used for accounts that must
// never succeed password verification.
func FederatedCredential() PasswordCredential {
	return PasswordCredential{Algorithm: AlgFederated}
}

// Hasher derives and verifies salted PBKDF2-HMAC-SHA256 password hashes.
type Hasher struct {
	iterations int
	entropy    EntropySource
}

// NewHasher builds a hasher. Non-positive iteration counts and nil entropy
// fall back to defaults.
func NewHasher(iterations int, entropy EntropySource) *Hasher {
	if iterations <= 0 {
		iterations = defaultIterations
	}
	if entropy == nil {
		entropy = DefaultEntropy
	}
	return &Hasher{iterations: iterations, entropy: entropy}
}

// Hash derives a credential with a fresh random salt.
func (h *Hasher) Hash(password string) (PasswordCredential, error) {
	raw, err := h.entropy(saltLength)
	if err != nil {
		return PasswordCredential{}, fmt.Errorf("generate salt: %w", err)
	}
	salt := base64.RawURLEncoding.EncodeToString(raw)
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, keyLength, sha256.New)
	return PasswordCredential{
		Algorithm:  algPBKDF2SHA256,
		Iterations: h.iterations,
		Salt:       salt,
		Hash:       base64.RawURLEncoding.EncodeToString(key),
	}, nil
}

// Verify recomputes the derivation with the stored salt and iteration count
// and compares in constant time. Wrong passwords and federated sentinels
// report false, never an error.
func (h *Hasher) Verify(password string, cred PasswordCredential) bool {
	if cred.Algorithm != algPBKDF2SHA256 {
		return false
	}
	if cred.Iterations <= 0 {
		return false
	}
	key := pbkdf2.Key([]byte(password), []byte(cred.Salt), cred.Iterations, keyLength, sha256.New)
	expected := base64.RawURLEncoding.EncodeToString(key)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(cred.Hash)) == 1
}
