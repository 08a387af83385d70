package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoreVault/internal/config"
	"github.com/untoldecay/LoreVault/internal/types"
)

func newTestService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc
}

func failureReason(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *types.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("not a typed error: %v", err)
	}
	reason, _ := appErr.Detail["reason"].(string)
	return reason
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t, config.Config{})

	token, expires, err := svc.Issue("acme", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if time.Until(expires) < 55*time.Minute {
		t.Errorf("expiry too soon: %v", expires)
	}
	tenant, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if tenant != "acme" {
		t.Errorf("tenant = %q, want acme", tenant)
	}
}

func TestVerifyTampered(t *testing.T) {
	svc := newTestService(t, config.Config{})
	token, _, err := svc.Issue("acme", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"flipped byte":    "x" + token[1:],
		"truncated":       token[:len(token)-2],
		"no separator":    strings.ReplaceAll(token, ".", ""),
		"empty":           "",
		"garbage":         "not-a-token",
		"wrong signature": strings.Split(token, ".")[0] + ".AAAA",
	}
	for name, bad := range cases {
		if _, err := svc.Verify(bad); !types.IsKind(err, types.KindUnauthorized) {
			t.Errorf("%s: kind = %v, want unauthorized", name, types.KindOf(err))
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	svc := newTestService(t, config.Config{})
	token, _, err := svc.Issue("acme", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Second + 10*time.Millisecond)
	_, err = svc.Verify(token)
	if got := failureReason(t, err); got != ReasonTokenExpired {
		t.Errorf("reason = %q, want %q", got, ReasonTokenExpired)
	}
}

func TestVerifySecretMismatch(t *testing.T) {
	a := newTestService(t, config.Config{AuthSecret: "secret-a"})
	b := newTestService(t, config.Config{AuthSecret: "secret-b"})
	token, _, err := a.Issue("acme", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("token signed with another secret verified")
	}
}

func TestStaticTokens(t *testing.T) {
	dev := newTestService(t, config.Config{})
	if tenant, err := dev.Verify(DevToken); err != nil || tenant != DevTenant {
		t.Errorf("dev token: tenant = %q, err = %v", tenant, err)
	}
	if tenant, err := dev.Verify(DemoToken); err != nil || tenant != DemoTenant {
		t.Errorf("demo token: tenant = %q, err = %v", tenant, err)
	}

	prod := newTestService(t, config.Config{Production: true, AuthSecret: "prod-secret"})
	for _, token := range []string{DevToken, DemoToken} {
		if _, err := prod.Verify(token); !types.IsKind(err, types.KindUnauthorized) {
			t.Errorf("static token %q accepted in production", token)
		}
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	_, err := New(config.Config{Production: true})
	if got := failureReason(t, err); got != ReasonSecretNotConfigured {
		t.Errorf("reason = %q, want %q", got, ReasonSecretNotConfigured)
	}
}

func TestDevSecretNeverValidatesInProduction(t *testing.T) {
	dev := newTestService(t, config.Config{})
	token, _, err := dev.Issue("acme", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	prod := newTestService(t, config.Config{Production: true, AuthSecret: "prod-secret"})
	if _, err := prod.Verify(token); err == nil {
		t.Error("dev-signed token verified in production")
	}
}

func TestVerifyHeader(t *testing.T) {
	svc := newTestService(t, config.Config{})
	token, _, err := svc.Issue("acme", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"missing", "", ReasonMissingHeader},
		{"no scheme", token, ReasonMalformedHeader},
		{"wrong scheme", "Basic " + token, ReasonMalformedHeader},
		{"empty token", "Bearer  ", ReasonMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.VerifyHeader(tt.header)
			if got := failureReason(t, err); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
		})
	}

	if tenant, err := svc.VerifyHeader("Bearer " + token); err != nil || tenant != "acme" {
		t.Errorf("valid header: tenant = %q, err = %v", tenant, err)
	}
	// Scheme comparison is case-insensitive.
	if _, err := svc.VerifyHeader("bearer " + token); err != nil {
		t.Errorf("lowercase scheme rejected: %v", err)
	}
}

func TestIssueRejectsBadTenant(t *testing.T) {
	svc := newTestService(t, config.Config{})
	for _, tenant := range []string{"", strings.Repeat("a", 65), "bad/tenant", "a b"} {
		if _, _, err := svc.Issue(tenant, time.Hour); !types.IsKind(err, types.KindValidation) {
			t.Errorf("tenant %q: kind = %v, want validation", tenant, types.KindOf(err))
		}
	}
}
