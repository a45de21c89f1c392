package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Claims is what the portal reads out of a verified identity token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Picture   string
	Nonce     string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// KeySource yields the signing keys identity tokens are checked against.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

type cachedKeys struct {
	cache *jwk.Cache
	url   string
}

func (c *cachedKeys) KeySet(ctx context.Context) (jwk.Set, error) {
	return c.cache.Lookup(ctx, c.url)
}

// NewCachedKeys registers the issuer's JWKS with a refreshing cache.
func NewCachedKeys(ctx context.Context, issuerURL string) (KeySource, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jwk cache: %w", err)
	}

	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", strings.TrimSuffix(issuerURL, "/"))
	if err := cache.Register(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to register jwks with cache: %w", err)
	}

	return &cachedKeys{cache: cache, url: jwksURL}, nil
}

type staticKeys struct {
	set jwk.Set
}

func (s staticKeys) KeySet(context.Context) (jwk.Set, error) {
	return s.set, nil
}

func StaticKeys(set jwk.Set) KeySource {
	return staticKeys{set: set}
}

// JWTVerifier checks signature, expiry, issuer and audience of identity
// tokens.
type JWTVerifier struct {
	keys     KeySource
	issuer   string
	audience string
}

func NewJWTVerifier(keys KeySource, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{keys: keys, issuer: issuer, audience: audience}
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	set, err := v.keys.KeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("parse jwt: %w", err)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("no subject claim in token")
	}

	claims := &Claims{Subject: subject}
	if err := token.Get("email", &claims.Email); err != nil {
		return nil, fmt.Errorf("no email claim in token: %w", err)
	}

	// optional
	_ = token.Get("name", &claims.Name)
	_ = token.Get("picture", &claims.Picture)
	_ = token.Get("nonce", &claims.Nonce)

	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	return claims, nil
}
