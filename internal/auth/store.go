package auth

import (
	"regexp"
	"strings"
)

// Repository is the persistence contract for user records. Lookups fail
// softly with ok=false; only mutations return errors.
type Repository interface {
	NextID() int64
	Get(username string) (*User, bool)
	FindByID(id int64) (*User, bool)
	FindByEmail(email string) (*User, bool)
	FindByRefreshID(refreshID string) (*User, bool)
	Add(u *User) error
	Update(u *User) error
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	emailRE      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)
	usernameRE   = regexp.MustCompile(`[^a-z0-9]`)
)

// NormalizeUsername lowercases and strips all whitespace. Two usernames that
// normalize equally are the same account.
func NormalizeUsername(name string) string {
	return whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
}

// ValidateEmail checks the local@domain.tld shape; it is a hint, not full
// RFC 5322 validation.
func ValidateEmail(email string) bool {
	return emailRE.MatchString(email)
}
