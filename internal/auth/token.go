package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SigningKeyEnv names the environment variable holding the server key.
	SigningKeyEnv = "SENTRA_AUTH_SIGNING_KEY"

	refreshPrefix = "r"
)

// SigningKeyFromEnv loads the signing key, falling back to a deterministic
// development key so tests are reproducible. The fallback must never reach a
// deployed instance.
func SigningKeyFromEnv() []byte {
	if raw := strings.TrimSpace(os.Getenv(SigningKeyEnv)); raw != "" {
		return []byte(raw)
	}
	sum := sha256.Sum256([]byte("sentra-auth-dev-fallback-key"))
	return sum[:]
}

// TokenCodec encodes and decodes signed compact tokens. It is a pure
// transform: Decode checks structure and signature, never expiry.
type TokenCodec struct {
	key []byte
}

// NewTokenCodec builds a codec around a server-held HMAC key.
func NewTokenCodec(key []byte) *TokenCodec {
	return &TokenCodec{key: key}
}

// Encode signs the claims as three dot-joined base64url segments with an
// HS256 signature. Claim JSON keys are sorted, keeping the signing input
// deterministic.
func (c *TokenCodec) Encode(claims AccessTokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         claims.Subject,
		"iat":         claims.IssuedAt,
		"exp":         claims.ExpiresAt,
		"roles":       claims.Roles,
		"permissions": claims.Permissions,
		"token_id":    claims.TokenID,
		"user_id":     claims.UserID,
		"username":    claims.Username,
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies structure and signature and returns the embedded claims.
// Expiry is the caller's responsibility.
func (c *TokenCodec) Decode(token string) (AccessTokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return AccessTokenClaims{}, ErrInvalidToken
	}
	payload, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return AccessTokenClaims{}, ErrInvalidToken
	}

	sub, _ := payload["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return AccessTokenClaims{}, ErrInvalidToken
	}
	claims := AccessTokenClaims{Subject: sub}
	if v, ok := toInt64(payload["iat"]); ok {
		claims.IssuedAt = v
	}
	if v, ok := toInt64(payload["exp"]); ok {
		claims.ExpiresAt = v
	}
	if v, ok := toInt64(payload["user_id"]); ok {
		claims.UserID = v
	}
	if v, ok := payload["token_id"].(string); ok {
		claims.TokenID = v
	}
	if v, ok := payload["username"].(string); ok {
		claims.Username = v
	}
	claims.Roles = toStrings(payload["roles"])
	claims.Permissions = toStrings(payload["permissions"])
	return claims, nil
}

type refreshPayload struct {
	RID string `json:"rid"`
	Exp int64  `json:"exp"`
}

// EncodeRefresh produces an opaque refresh token: r.<base64url(payload)>.<base64url(sig)>.
// Only the id inside is meaningful server-side.
func (c *TokenCodec) EncodeRefresh(id string, expiresAt time.Time) (string, error) {
	payload, err := json.Marshal(refreshPayload{RID: id, Exp: expiresAt.Unix()})
	if err != nil {
		return "", fmt.Errorf("encode refresh payload: %w", err)
	}
	sig := hmacSign(payload, c.key)
	return refreshPrefix + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

// DecodeRefresh verifies the signature and returns the embedded id and expiry.
func (c *TokenCodec) DecodeRefresh(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != refreshPrefix {
		return "", time.Time{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if !hmac.Equal(sig, hmacSign(payload, c.key)) {
		return "", time.Time{}, ErrInvalidToken
	}
	var decoded refreshPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if decoded.RID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	return decoded.RID, time.Unix(decoded.Exp, 0).UTC(), nil
}

func hmacSign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
