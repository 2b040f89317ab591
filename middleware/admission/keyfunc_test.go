package admission

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"admission-gateway/middleware/admission/domain"
)

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultKeyFunc_FallbacksToRemoteAddrHost(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_XFFIgnoredWhenNotTrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestRouteKeyFunc_AppendsPath(t *testing.T) {
	fn := RouteKeyFunc(DefaultKeyFunc("", false))

	r := httptest.NewRequest(http.MethodGet, "http://example/api/podcasts?page=2", nil)
	r.RemoteAddr = "10.0.0.9:5555"

	if got := fn(r); got != "10.0.0.9:/api/podcasts" {
		t.Fatalf("expected ip+path key, got %q", got)
	}
}

func TestPrincipalKeyFunc_FallsBackWithoutIdentity(t *testing.T) {
	fn := PrincipalKeyFunc(DefaultKeyFunc("", false))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected fallback key, got %q", got)
	}

	ctx, st := newState(r.Context())
	st.setPrincipal(domain.Principal{ID: "u-1", Role: domain.RolePublisher})
	if got := fn(r.WithContext(ctx)); got != "user:u-1" {
		t.Fatalf("expected principal key, got %q", got)
	}
}
