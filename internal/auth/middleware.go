// Package auth extracts the authenticated (family, user) identity from a
// bearer token. The ledger core never sees tokens, only the extracted
// identity threaded in as explicit parameters.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller the handlers act on behalf of.
type Identity struct {
	FamilyID string
	UserID   string
}

type identityKey struct{}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

// Claims is the token payload: standard registered claims plus the tenant
// and user the session belongs to.
type Claims struct {
	jwt.RegisteredClaims
	FamilyID string `json:"family_id"`
	UserID   string `json:"user_id"`
}

// Verifier validates HS256 session tokens minted by this service.
type Verifier struct {
	Secret []byte
	Issuer string
}

func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("verifier has no secret")
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return nil, errors.New("invalid issuer")
	}
	if claims.FamilyID == "" || claims.UserID == "" {
		return nil, errors.New("token missing family or user claim")
	}
	return &Identity{FamilyID: claims.FamilyID, UserID: claims.UserID}, nil
}

// Sign mints a session token for the identity. Used by the login flow and
// by tests.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		FamilyID: id.FamilyID,
		UserID:   id.UserID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

// Authenticate rejects requests without a valid bearer token and stores the
// extracted identity on the request context.
func Authenticate(v *Verifier, onError func(http.ResponseWriter, *http.Request, int, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			id, err := v.Verify(strings.TrimSpace(authz[len("Bearer "):]))
			if err != nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
