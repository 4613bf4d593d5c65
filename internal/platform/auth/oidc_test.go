package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

const (
	schedulerAudience = "https://api.seeralab.com/internal"
	googleIssuer      = "https://accounts.google.com"
)

func TestJWKSCacheFetchesOnce(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "key1",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	var mu sync.Mutex
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=3600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	cache := NewJWKSCache(server.URL,
		WithJWKSLogger(noopLogger{}),
		WithJWKSClock(func() time.Time { return time.Unix(1_000_000, 0) }),
	)

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}

	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected a single JWKS fetch, got %d", requests)
	}
}

func TestRequireOIDCAdmitsSchedulerToken(t *testing.T) {
	validator, token := newOIDCFixture(t, nil)

	middleware := validator.RequireOIDC(schedulerAudience, []string{googleIssuer})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/cleanup-idempotency", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected service identity in context")
		}
		if identity.Email != "scheduler@seera-lab.iam.gserviceaccount.com" {
			t.Fatalf("unexpected identity email %q", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestRequireOIDCRejectsAudienceMismatch(t *testing.T) {
	validator, token := newOIDCFixture(t, nil)

	middleware := validator.RequireOIDC("https://other.seeralab.com", []string{googleIssuer})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/cleanup-idempotency", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestRequireOIDCRejectsUnknownIssuer(t *testing.T) {
	validator, token := newOIDCFixture(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://issuer.invalid"
	})

	middleware := validator.RequireOIDC(schedulerAudience, []string{googleIssuer})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/cleanup-idempotency", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestRequireOIDCAcceptsIAPAssertionHeader(t *testing.T) {
	audience := "/projects/123/global/backendServices/456"
	validator, token := newOIDCFixture(t, func(claims jwt.MapClaims) {
		claims["aud"] = []string{audience}
		claims["iss"] = "https://cloud.google.com/iap"
	})

	middleware := validator.RequireOIDC(audience, []string{"https://cloud.google.com/iap"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/cleanup-idempotency", nil)
	req.Header.Set("X-Goog-Iap-Jwt-Assertion", token)

	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
}

func TestRequireOIDCFailsClosedWhenJWKSUnreachable(t *testing.T) {
	validator, token := newOIDCFixture(t, nil)
	validator.cache.url = "http://127.0.0.1:65535/invalid"

	middleware := validator.RequireOIDC(schedulerAudience, []string{googleIssuer})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/cleanup-idempotency", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func newOIDCFixture(t *testing.T, mutateClaims func(jwt.MapClaims)) (*OIDCValidator, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "svc-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	validator := NewOIDCValidator(
		NewJWKSCache(server.URL,
			WithJWKSLogger(noopLogger{}),
			WithJWKSClock(func() time.Time { return now }),
		),
		WithOIDCLogger(noopLogger{}),
	)

	claims := jwt.MapClaims{
		"aud":   []string{schedulerAudience},
		"iss":   googleIssuer,
		"sub":   "109876543210987654321",
		"email": "scheduler@seera-lab.iam.gserviceaccount.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return validator, signed
}
