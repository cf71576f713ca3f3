package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func newTrustedProxyAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	authenticator, err := NewAuthenticator(AuthenticatorConfig{})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	return authenticator
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	authenticator := newTrustedProxyAuthenticator(t)

	handler := authenticator.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protocol", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	authenticator := newTrustedProxyAuthenticator(t)

	handler := authenticator.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protocol", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	authenticator := newTrustedProxyAuthenticator(t)

	var got Identity
	handler := authenticator.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signedTestToken(t, jwt.MapClaims{"sub": "u1", "email": "alice@lab.example"})
	req := httptest.NewRequest(http.MethodGet, "/protocol", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.Subject)
	assert.Equal(t, "alice@lab.example", got.Email)
}

func TestIdentifyRequiresSubject(t *testing.T) {
	authenticator := newTrustedProxyAuthenticator(t)

	token := signedTestToken(t, jwt.MapClaims{"email": "alice@lab.example"})
	_, err := authenticator.Identify(token)
	assert.Error(t, err)
}
