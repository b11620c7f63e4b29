package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PrincipalHeader carries the caller identity when no JWT secret is
// configured.  Only use that mode behind a trusted gateway.
const PrincipalHeader = "X-Vault-Principal"

var errInvalidToken = errors.New("invalid bearer token")

type callerKey struct{}

// Caller returns the authenticated principal for the request, or "".
func Caller(ctx context.Context) string {
	c, _ := ctx.Value(callerKey{}).(string)
	return c
}

// Authenticator resolves the caller principal for each request.
//
// With a secret, the caller is the "sub" claim of an HS256 bearer token.
// Without one, it is the PrincipalHeader value.  A request with neither is
// anonymous; anonymous callers fail every privileged operation.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

func NewAuthenticator(secret string) *Authenticator {
	a := &Authenticator{leeway: 30 * time.Second}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// IssueToken signs a token for principal.  Used by operators and tests.
func (a *Authenticator) IssueToken(principal string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no jwt secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.resolve(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		return strings.TrimSpace(r.Header.Get(PrincipalHeader)), nil
	}

	h := r.Header.Get("Authorization")
	if h == "" {
		return "", nil
	}
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", errInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}
