package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityPrivileged(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"Admin", true},
		{"user", false},
		{"", false},
	}
	for _, tc := range cases {
		got := Identity{ID: "u-1", Role: tc.role}.Privileged()
		if got != tc.want {
			t.Errorf("role %q: privileged = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestIdentityMiddlewareExtractsHeaders(t *testing.T) {
	var seen Identity
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", " u-42 ")
	req.Header.Set("X-User-Name", "Jo")
	req.Header.Set("X-User-Role", "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.ID != "u-42" {
		t.Fatalf("id not trimmed: %q", seen.ID)
	}
	if seen.Name != "Jo" || !seen.Privileged() {
		t.Fatalf("unexpected identity: %+v", seen)
	}
}

func TestIdentityFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity := IdentityFrom(req.Context())
	if identity.ID != "" || identity.Privileged() {
		t.Fatalf("expected anonymous identity, got %+v", identity)
	}
}
