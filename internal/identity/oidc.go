package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pulsepoint/pkg/types"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// PopupFlow is the redirect based sign-in that stands in for a provider
// popup: the browser is sent to AuthCodeURL and comes back with a code.
type PopupFlow interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (*types.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*types.Identity, error)
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

type OIDCFlow struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

func NewOIDCFlow(ctx context.Context, cfg OIDCConfig) (*OIDCFlow, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc issuer, client id and redirect url are required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), strings.TrimSuffix(cfg.IssuerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := cfg.Scopes
	if !hasScope(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	return &OIDCFlow{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		client:   client,
	}, nil
}

func (f *OIDCFlow) AuthCodeURL(state, nonce string) string {
	return f.oauth.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (f *OIDCFlow) Exchange(ctx context.Context, code, nonce string) (*types.Identity, error) {
	token, err := f.oauth.Exchange(oidc.ClientContext(ctx, f.client), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code for token: %w", err)
	}

	return f.identity(ctx, token, nonce, "")
}

func (f *OIDCFlow) Refresh(ctx context.Context, refreshToken string) (*types.Identity, error) {
	src := f.oauth.TokenSource(oidc.ClientContext(ctx, f.client), &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	return f.identity(ctx, token, "", refreshToken)
}

type oidcClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

func (f *OIDCFlow) identity(ctx context.Context, token *oauth2.Token, nonce, refreshToken string) (*types.Identity, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("missing id_token in token response")
	}

	idToken, err := f.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}

	if nonce != "" && claims.Nonce != nonce {
		return nil, errors.New("invalid nonce")
	}
	if claims.Email == "" {
		return nil, errors.New("id_token has no email")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("email is not verified")
	}

	if token.RefreshToken != "" {
		refreshToken = token.RefreshToken
	}

	return &types.Identity{
		UID:          idToken.Subject,
		Email:        strings.ToLower(claims.Email),
		DisplayName:  claims.Name,
		PhotoURL:     claims.Picture,
		Provider:     types.IdentityProviderOIDC,
		Token:        raw,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    idToken.Expiry,
	}, nil
}

func hasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
