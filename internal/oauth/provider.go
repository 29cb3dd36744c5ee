// Package oauth holds the federated identity providers the auth service
// can delegate sign-in to. Providers verify tokens server-side and return
// normalized claims; client-supplied profile data is never trusted.
package oauth

import (
	"context"

	"sentra.org/internal/auth"
)

// Provider is an OAuth2 identity provider using the authorization code flow
// with PKCE. Callers pass the code_challenge to AuthCodeURL and the matching
// code_verifier to Exchange.
type Provider interface {
	// Name identifies the provider in URLs and audit records.
	Name() string

	// AuthCodeURL returns the consent page URL with state and PKCE
	// code_challenge embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades an authorization code for verified identity claims.
	Exchange(ctx context.Context, code, codeVerifier string) (auth.FederatedClaims, error)
}
