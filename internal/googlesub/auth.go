package googlesub

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/oauth2/jwt"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
)

const (
	indexingScope = "https://www.googleapis.com/auth/indexing"
	tokenURL      = "https://oauth2.googleapis.com/token"
)

// serviceAccount is the subset of the Google service-account JSON fields
// needed to build the JWT-bearer assertion.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// tokenSourceFromServiceAccountJSON builds a jwt.Config whose TokenSource signs
// an RS256 JWT-bearer assertion (iss=client_email, scope=indexing,
// aud=token endpoint, exp=iat+3600) and exchanges it at the Google token
// endpoint.
func tokenSourceFromServiceAccountJSON(ctx context.Context, raw []byte) (*jwt.Config, error) {
	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, workererrors.InvalidCredential(err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, workererrors.InvalidCredential(nil)
	}

	cfg := &jwt.Config{
		Email:      sa.ClientEmail,
		PrivateKey: []byte(sa.PrivateKey),
		TokenURL:   tokenURL,
		Scopes:     []string{indexingScope},
		Expires:    time.Hour,
	}
	return cfg, nil
}

// fetchBearerToken exchanges the service-account credential for a bearer
// token string.
func fetchBearerToken(ctx context.Context, serviceAccountJSON []byte) (string, error) {
	cfg, err := tokenSourceFromServiceAccountJSON(ctx, serviceAccountJSON)
	if err != nil {
		return "", err
	}
	token, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", workererrors.InvalidCredential(err)
	}
	return token.AccessToken, nil
}
