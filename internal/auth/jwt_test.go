package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test-admin",
		TTL:      time.Hour,
	}
}

func TestGenerateAndAuthorize(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "ops", ScopeAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := Authorize(cfg, token, ScopeAdmin)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestAuthorizeRejects(t *testing.T) {
	cfg := testConfig()

	noScope, _ := GenerateToken(cfg, "reader")
	otherSecret, _ := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: "test", Audience: "test-admin", TTL: time.Hour}, "ops", ScopeAdmin)
	wrongAudience, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: "test", Audience: "someone-else", TTL: time.Hour}, "ops", ScopeAdmin)
	expired, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: "test", Audience: "test-admin", TTL: -time.Minute}, "ops", ScopeAdmin)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "missing scope", token: noScope, want: ErrMissingScope},
		{name: "wrong secret", token: otherSecret, want: ErrInvalidToken},
		{name: "wrong audience", token: wrongAudience, want: ErrInvalidToken},
		{name: "expired", token: expired, want: ErrInvalidToken},
		{name: "garbage", token: "not-a-token", want: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Authorize(cfg, tt.token, ScopeAdmin)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	if _, err := GenerateToken(&JWTConfig{}, "ops", ScopeAdmin); err == nil {
		t.Fatal("expected error without secret")
	}
}
