package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"sentra.org/internal/auth"
)

const googleIssuer = "https://accounts.google.com"

// Google implements Provider on Google's OIDC discovery and OAuth2 code flow.
type Google struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogle fetches Google's OIDC discovery document. It makes an outbound
// request at construction time and fails if the issuer is unreachable.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthCodeURL(state, codeChallenge string) string {
	return g.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange verifies the returned ID token against Google's JWKS (signature,
// audience, expiry) before extracting any claims from it.
func (g *Google) Exchange(ctx context.Context, code, codeVerifier string) (auth.FederatedClaims, error) {
	token, err := g.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return auth.FederatedClaims{}, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return auth.FederatedClaims{}, fmt.Errorf("token response missing id_token")
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.FederatedClaims{}, fmt.Errorf("verify id token: %w", err)
	}

	var c struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&c); err != nil {
		return auth.FederatedClaims{}, fmt.Errorf("decode id token claims: %w", err)
	}

	return auth.FederatedClaims{
		Provider:      g.Name(),
		ExternalID:    c.Sub,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		DisplayName:   strings.TrimSpace(c.GivenName + " " + c.FamilyName),
		AvatarURL:     c.Picture,
	}, nil
}
