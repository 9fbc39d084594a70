package http

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the caller as asserted by the authenticating front end. This
// service never verifies credentials; it trusts the X-User-* headers the
// edge attaches after login.
type Identity struct {
	ID   string
	Name string
	Role string
}

// Privileged reports whether the caller may read or delete across owners.
func (id Identity) Privileged() bool {
	return strings.EqualFold(id.Role, "admin")
}

const identityKey ContextKey = "identity"

// IdentityMiddleware decodes the trusted identity headers into the context.
// Requests without an id stay anonymous; handlers that need a caller reject
// them with 401.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := Identity{
			ID:   strings.TrimSpace(r.Header.Get("X-User-Id")),
			Name: strings.TrimSpace(r.Header.Get("X-User-Name")),
			Role: strings.TrimSpace(r.Header.Get("X-User-Role")),
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom reads the caller identity placed by IdentityMiddleware.
func IdentityFrom(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{}
}

// requireIdentity rejects anonymous requests. The bool reports whether the
// handler may proceed.
func requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity := IdentityFrom(r.Context())
	if identity.ID == "" {
		respondError(w, http.StatusUnauthorized, "caller identity required")
		return Identity{}, false
	}
	return identity, true
}

// requirePrivileged rejects callers without the admin role.
func requirePrivileged(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return Identity{}, false
	}
	if !identity.Privileged() {
		respondError(w, http.StatusForbidden, "privileged role required")
		return Identity{}, false
	}
	return identity, true
}
