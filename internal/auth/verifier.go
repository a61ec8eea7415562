package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrInvalidToken is returned for any token the provider rejects
var ErrInvalidToken = errors.New("invalid authentication credentials")

// Claims is the caller identity the rest of the service sees. No
// session state is kept; every request is verified anew.
type Claims struct {
	Subject string
	Email   string
	Groups  []string
}

// Verifier validates a bearer token against an identity provider
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// OIDCConfig holds configuration for the OIDC verifier.
type OIDCConfig struct {
	IssuerURL  string
	ClientID   string
	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
}

// OIDCVerifier verifies ID tokens against an OIDC provider's JWKS.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewOIDCVerifier performs the discovery fetch once and returns a
// verifier bound to the issuer.
func NewOIDCVerifier(ctx context.Context, config OIDCConfig) (*OIDCVerifier, error) {
	if config.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

// Verify validates the raw token and extracts the caller identity.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var tokenClaims struct {
		Email  string   `json:"email"`
		Groups []string `json:"groups"`
	}
	if err := idToken.Claims(&tokenClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Claims{
		Subject: idToken.Subject,
		Email:   tokenClaims.Email,
		Groups:  tokenClaims.Groups,
	}, nil
}

// StaticVerifier accepts any non-empty token and returns a fixed
// identity. Development and test use only.
type StaticVerifier struct {
	Claims Claims
}

// Verify implements Verifier
func (v *StaticVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	claims := v.Claims
	return &claims, nil
}
