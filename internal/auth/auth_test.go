package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	iss, err := NewIssuer("s3cret", WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, expiresAt, err := iss.GenerateToken("alice", []string{"Operator", "viewer", "operator"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if len(claims.Roles) != 2 || !slices.Contains(claims.Roles, "operator") {
		t.Fatalf("roles were not normalized: %v", claims.Roles)
	}
	if !claims.HasRole(RoleOperator) {
		t.Fatal("expected operator role")
	}
}

func TestRejectsForeignSecretAndIssuer(t *testing.T) {
	a, _ := NewIssuer("secret-a")
	b, _ := NewIssuer("secret-b")
	other, _ := NewIssuer("secret-a", WithIssuer("someone-else"))

	token, _, err := a.GenerateToken("alice", []string{RoleOperator}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := b.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
	if _, err := other.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong issuer, got %v", err)
	}
	if _, err := a.ParseAndValidate("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for blank input, got %v", err)
	}
}

func TestRejectsExpired(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	iss, _ := NewIssuer("s3cret", WithClock(func() time.Time { return clock }))

	token, _, err := iss.GenerateToken("alice", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	clock = now.Add(2 * time.Minute)
	if _, err := iss.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(" "); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	iss, _ := NewIssuer("x")
	if _, _, err := iss.GenerateToken("", nil, time.Minute); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, _, err := iss.GenerateToken("a", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestContextRoles(t *testing.T) {
	ctx := ContextWithUser(context.Background(), " bob ", []string{"Operator", "operator"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "bob" {
		t.Fatalf("unexpected user id %q", id)
	}
	if !HasRole(ctx, "OPERATOR") {
		t.Fatal("expected operator role")
	}
	if HasRole(ctx, "admin") {
		t.Fatal("unexpected admin role")
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
}
