package wsauth

import (
	"context"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthenticateValidToken(t *testing.T) {
	token, err := Mint(testSecret, "org-1", []string{"proj-1", "proj-2"}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	v := New(testSecret)
	org, ok := v.Authenticate(context.Background(), token, "proj-2")
	if !ok {
		t.Fatal("Authenticate() should accept a token scoped to the requested project")
	}
	if org != "org-1" {
		t.Fatalf("org = %q, want org-1", org)
	}
}

func TestAuthenticateRejectsUnscopedProject(t *testing.T) {
	token, err := Mint(testSecret, "org-1", []string{"proj-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	v := New(testSecret)
	if _, ok := v.Authenticate(context.Background(), token, "proj-unauthorized"); ok {
		t.Fatal("Authenticate() should reject a project not in the token's scope")
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	token, err := Mint(testSecret, "org-1", []string{"proj-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	v := New("a-completely-different-secret-value")
	if _, ok := v.Authenticate(context.Background(), token, "proj-1"); ok {
		t.Fatal("Authenticate() should reject a token signed with a different secret")
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	token, err := Mint(testSecret, "org-1", []string{"proj-1"}, -time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	v := New(testSecret)
	if _, ok := v.Authenticate(context.Background(), token, "proj-1"); ok {
		t.Fatal("Authenticate() should reject an expired token")
	}
}

func TestAuthenticateRejectsEmptyToken(t *testing.T) {
	v := New(testSecret)
	if _, ok := v.Authenticate(context.Background(), "", "proj-1"); ok {
		t.Fatal("Authenticate() should reject an empty token")
	}
}

func TestAuthenticateRejectsMalformedToken(t *testing.T) {
	v := New(testSecret)
	if _, ok := v.Authenticate(context.Background(), "not-a-jwt", "proj-1"); ok {
		t.Fatal("Authenticate() should reject a malformed token")
	}
}
