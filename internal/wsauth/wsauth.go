// Package wsauth verifies the bearer token presented by a live event bus
// WebSocket client and resolves it to the organization that owns the
// requested project.
package wsauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
)

// claims is the shape issued by the owning service's session minting for
// the live event bus: org scopes which projects a connection may subscribe
// to, matched against the projectId path parameter at upgrade time.
type claims struct {
	Org        string   `json:"org"`
	ProjectIDs []string `json:"projectIds"`
	jwt.RegisteredClaims
}

// Verifier checks HS256-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func New(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Authenticate implements eventbus.AuthFunc.
func (v *Verifier) Authenticate(ctx context.Context, token, projectID string) (string, bool) {
	if token == "" {
		return "", false
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(5*time.Second))
	if err != nil || !parsed.Valid {
		return "", false
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return "", false
	}
	if !containsProject(c.ProjectIDs, projectID) {
		return "", false
	}
	return c.Org, true
}

func containsProject(ids []string, projectID string) bool {
	for _, id := range ids {
		if id == projectID {
			return true
		}
	}
	return false
}

// Mint issues a token scoped to the given org and projects; used by tests
// and by the owning service's session layer.
func Mint(secret, org string, projectIDs []string, ttl time.Duration) (string, error) {
	c := claims{
		Org:        org,
		ProjectIDs: projectIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", workererrors.Internal("sign ws token", err)
	}
	return signed, nil
}
