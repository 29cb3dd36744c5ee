package auth

import (
	"sort"
	"time"
)

// IdentityKind tags how an account authenticates.
type IdentityKind string

const (
	IdentityLocal     IdentityKind = "local"
	IdentityFederated IdentityKind = "federated"
)

// FederatedIdentity carries provider-side details for externally
// authenticated accounts.
type FederatedIdentity struct {
	Provider    string
	ExternalID  string
	DisplayName string
	AvatarURL   string
}

// Identity is a tagged variant: local accounts carry no extension,
// federated accounts carry the provider record.
type Identity struct {
	Kind      IdentityKind
	Federated *FederatedIdentity
}

// User is an account record. Owned exclusively by the Repository; the
// service holds a copy for the duration of a call and writes back through
// Update.
type User struct {
	ID          int64
	Username    string
	Email       string
	Credential  PasswordCredential
	Roles       map[string]struct{}
	Permissions map[string]struct{}
	CreatedAt   time.Time
	LastLogin   time.Time
	Identity    Identity

	// RefreshTokens maps outstanding refresh-token ids to their expiry.
	RefreshTokens map[string]time.Time
}

// clone deep-copies the record so repository state never escapes by reference.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = make(map[string]struct{}, len(u.Roles))
	for r := range u.Roles {
		out.Roles[r] = struct{}{}
	}
	out.Permissions = make(map[string]struct{}, len(u.Permissions))
	for p := range u.Permissions {
		out.Permissions[p] = struct{}{}
	}
	out.RefreshTokens = make(map[string]time.Time, len(u.RefreshTokens))
	for id, exp := range u.RefreshTokens {
		out.RefreshTokens[id] = exp
	}
	if u.Identity.Federated != nil {
		fed := *u.Identity.Federated
		out.Identity.Federated = &fed
	}
	return &out
}

// RoleNames returns the user's roles sorted for stable claim payloads.
func (u *User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for r := range u.Roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// EffectivePermissions is the union of direct grants and role permissions,
// recomputed on demand and never cached on the record.
func (u *User) EffectivePermissions() []string {
	set := make(map[string]struct{}, len(u.Permissions))
	for p := range u.Permissions {
		set[p] = struct{}{}
	}
	for r := range u.Roles {
		for _, p := range RolePermissions(r) {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AccessTokenClaims is the payload embedded in a signed access token.
// Immutable once issued.
type AccessTokenClaims struct {
	Subject     string
	IssuedAt    int64
	ExpiresAt   int64
	Roles       []string
	Permissions []string
	TokenID     string
	UserID      int64
	Username    string
}

// LoginResult is returned by Login, Refresh, and FederatedLogin.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
	Username     string
	Roles        []string
	ExpiresAt    time.Time
}

// FederatedClaims is the resolved identity handed over by an external
// provider. The core never performs the redirect or token exchange itself.
type FederatedClaims struct {
	Provider      string
	ExternalID    string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
}
