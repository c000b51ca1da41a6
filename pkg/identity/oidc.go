package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig holds OpenID Connect settings
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Claim that carries the enterprise principal name; defaults to
	// preferred_username
	PrincipalClaim string
}

// OIDCProvider authenticates via OpenID Connect authorization code flow
type OIDCProvider struct {
	cfg          OIDCConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and builds the provider
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oidc issuer url, client id, and redirect url are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if cfg.PrincipalClaim == "" {
		cfg.PrincipalClaim = "preferred_username"
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCProvider{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

// Name returns the provider name
func (p *OIDCProvider) Name() string { return "oidc" }

// Begin redirects to the authorization endpoint
func (p *OIDCProvider) Begin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusFound)
	return nil
}

// Complete exchanges the authorization code and verifies the ID token
func (p *OIDCProvider) Complete(r *http.Request) (Ticket, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return Ticket{}, fmt.Errorf("%w: missing authorization code", ErrAuthFailed)
	}

	ctx := r.Context()
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: code exchange failed: %v", ErrAuthFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Ticket{}, fmt.Errorf("%w: missing id_token", ErrAuthFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: id token verification failed: %v", ErrAuthFailed, err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return Ticket{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	principal, _ := claims[p.cfg.PrincipalClaim].(string)
	if principal == "" {
		principal = idToken.Subject
	}
	if principal == "" {
		return Ticket{}, fmt.Errorf("%w: id token carried no principal", ErrAuthFailed)
	}

	attrs := make(map[string]string)
	for k, v := range claims {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}

	return Ticket{
		Principal:  principal,
		Provider:   p.Name(),
		IssuedAt:   time.Now(),
		Attributes: attrs,
	}, nil
}
