package auth

import (
	"context"
	"net/http"
	"strings"

	"gigflow/internal/common/errors"
)

// Resolver resolves the identity of the caller making r.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (string, error)

func (f ResolverFunc) Resolve(r *http.Request) (string, error) { return f(r) }

// HeaderResolver trusts an identity header set by an authenticating gateway.
type HeaderResolver struct {
	Header string
}

func NewHeaderResolver(header string) *HeaderResolver {
	if header == "" {
		header = "X-User-ID"
	}
	return &HeaderResolver{Header: header}
}

func (h *HeaderResolver) Resolve(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(h.Header))
	if id == "" {
		return "", errors.NewUnauthenticatedError("missing " + h.Header + " header")
	}
	return id, nil
}

// bearerToken reads the token from the Authorization header, then the
// "token" cookie, then the access_token query parameter. Browsers cannot set
// headers on websocket upgrades, hence the fallbacks.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("access_token")
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity the middleware resolved.
func IdentityFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}
