package googlesub

import (
	"context"
	"testing"
)

func TestTokenSourceRejectsMalformedJSON(t *testing.T) {
	_, err := tokenSourceFromServiceAccountJSON(context.Background(), []byte("not json"))
	if err == nil {
		t.Fatal("expected an error for malformed service-account JSON")
	}
}

func TestTokenSourceRejectsMissingFields(t *testing.T) {
	_, err := tokenSourceFromServiceAccountJSON(context.Background(), []byte(`{"client_email":""}`))
	if err == nil {
		t.Fatal("expected an error when client_email/private_key are missing")
	}
}

func TestTokenSourceBuildsConfigFromValidJSON(t *testing.T) {
	raw := []byte(`{"client_email":"svc@example.iam.gserviceaccount.com","private_key":"fake-key"}`)
	cfg, err := tokenSourceFromServiceAccountJSON(context.Background(), raw)
	if err != nil {
		t.Fatalf("tokenSourceFromServiceAccountJSON() error = %v", err)
	}
	if cfg.Email != "svc@example.iam.gserviceaccount.com" {
		t.Errorf("Email = %q", cfg.Email)
	}
	if cfg.TokenURL != tokenURL {
		t.Errorf("TokenURL = %q, want %q", cfg.TokenURL, tokenURL)
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != indexingScope {
		t.Errorf("Scopes = %v, want [%s]", cfg.Scopes, indexingScope)
	}
}
