// Package auth issues and verifies the bearer tokens that carry a
// tenant identity. Tokens are opaque HMAC-signed values; callers never
// inspect them, they hand them back and get a tenant out.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/untoldecay/LoreVault/internal/config"
	"github.com/untoldecay/LoreVault/internal/types"
)

// devSecret signs tokens when no secret is configured. It never
// validates in production.
const devSecret = "lorevault-dev-secret-do-not-ship"

// Static tokens for local tooling. Both map to a fixed tenant and are
// rejected outright in production.
const (
	DevToken    = "lv-dev-local"
	DemoToken   = "lv-demo-service"
	DevTenant   = "local-dev"
	DemoTenant  = "demo"
	DefaultTTL  = 24 * time.Hour
)

// Failure reasons carried in the error detail so the façade can report
// why verification failed without leaking token contents.
const (
	ReasonMissingHeader       = "missing_header"
	ReasonMalformedHeader     = "malformed_header"
	ReasonTokenExpired        = "token_expired"
	ReasonTokenInvalid        = "token_invalid"
	ReasonSecretNotConfigured = "secret_not_configured"
)

type claims struct {
	Tenant    string `json:"tenant"`
	ExpiresAt int64  `json:"exp"`
}

// Service signs and verifies tokens with a single HMAC secret.
type Service struct {
	secret     []byte
	production bool
	ttl        time.Duration
}

// New builds the auth service from config. In production a secret must
// be explicitly configured; New fails rather than fall back to the
// development secret.
func New(cfg config.Config) (*Service, error) {
	secret := cfg.AuthSecret
	if secret == "" {
		if cfg.Production {
			return nil, types.NewError(types.KindUnauthorized,
				"auth secret not configured").WithDetail("reason", ReasonSecretNotConfigured)
		}
		secret = devSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: []byte(secret), production: cfg.Production, ttl: ttl}, nil
}

// Issue creates a token for the tenant. A non-positive ttl uses the
// configured default.
func (s *Service) Issue(tenant string, ttl time.Duration) (string, time.Time, error) {
	if err := validTenant(tenant); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	expires := time.Now().UTC().Add(ttl)
	payload, err := json.Marshal(claims{Tenant: tenant, ExpiresAt: expires.Unix()})
	if err != nil {
		return "", time.Time{}, types.WrapError(types.KindInternal, err, "failed to encode token")
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.sign(body), expires, nil
}

// Verify extracts the tenant from a token. Static dev and demo tokens
// are honoured outside production only.
func (s *Service) Verify(token string) (string, error) {
	switch token {
	case DevToken:
		if s.production {
			return "", invalid(ReasonTokenInvalid, "static token rejected in production")
		}
		return DevTenant, nil
	case DemoToken:
		if s.production {
			return "", invalid(ReasonTokenInvalid, "static token rejected in production")
		}
		return DemoTenant, nil
	}

	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return "", invalid(ReasonTokenInvalid, "token is not well formed")
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(body))) {
		return "", invalid(ReasonTokenInvalid, "token signature mismatch")
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", invalid(ReasonTokenInvalid, "token payload undecodable")
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", invalid(ReasonTokenInvalid, "token payload undecodable")
	}
	if time.Now().UTC().Unix() >= c.ExpiresAt {
		return "", invalid(ReasonTokenExpired, "token expired")
	}
	if err := validTenant(c.Tenant); err != nil {
		return "", invalid(ReasonTokenInvalid, "token carries no valid tenant")
	}
	return c.Tenant, nil
}

// VerifyHeader parses an Authorization header value and verifies the
// bearer token inside it.
func (s *Service) VerifyHeader(header string) (string, error) {
	if header == "" {
		return "", invalid(ReasonMissingHeader, "missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", invalid(ReasonMalformedHeader, "Authorization header is not a bearer token")
	}
	return s.Verify(strings.TrimSpace(token))
}

func (s *Service) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func invalid(reason, msg string) error {
	return types.NewError(types.KindUnauthorized, "%s", msg).WithDetail("reason", reason)
}

func validTenant(tenant string) error {
	if tenant == "" || len(tenant) > types.MaxTenantLength {
		return types.NewError(types.KindValidation, "tenant must be 1-%d characters", types.MaxTenantLength)
	}
	for _, r := range tenant {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return types.NewError(types.KindValidation, "tenant contains invalid character %q", r)
		}
	}
	return nil
}
