package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// --- mock store ---

type mockAccountLookup struct {
	accounts map[string]*Account
}

func (m *mockAccountLookup) GetByKeyHash(ctx context.Context, hash string) (*Account, error) {
	acct, ok := m.accounts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return acct, nil
}

type countingMetrics struct {
	failures, successes map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{failures: map[string]int{}, successes: map[string]int{}}
}

func (m *countingMetrics) IncAuthFailure(authType string) { m.failures[authType]++ }
func (m *countingMetrics) IncAuthSuccess(authType string) { m.successes[authType]++ }

// --- GenerateAPIKey tests ---

func TestGenerateAPIKey_PrefixAndLength(t *testing.T) {
	key, plaintext, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}

	if !strings.HasPrefix(plaintext, KeyPrefix) {
		t.Errorf("plaintext key should start with %q, got %q", KeyPrefix, plaintext)
	}

	// "jeton_" (6) + 32 random chars = 38
	if len(plaintext) != 38 {
		t.Errorf("expected plaintext length 38, got %d", len(plaintext))
	}
	if key.Prefix != plaintext[:12] {
		t.Errorf("expected prefix %q, got %q", plaintext[:12], key.Prefix)
	}
	if key.Hash != HashKey(plaintext) {
		t.Error("hash does not match plaintext")
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, plaintext, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("duplicate key generated: %s", plaintext)
		}
		seen[plaintext] = true
	}
}

func TestHashKey(t *testing.T) {
	if HashKey("jeton_a") != HashKey("jeton_a") {
		t.Error("HashKey should be deterministic")
	}
	if HashKey("jeton_a") == HashKey("jeton_b") {
		t.Error("different keys should produce different hashes")
	}
	if len(HashKey("anything")) != 64 {
		t.Error("expected 64 hex characters")
	}
}

func TestHashAdminKey(t *testing.T) {
	if _, err := HashAdminKey("short"); err == nil {
		t.Error("expected error for short admin key")
	}

	hash, err := HashAdminKey("a-long-enough-admin-key")
	if err != nil {
		t.Fatalf("HashAdminKey: %v", err)
	}
	if !CheckAdminKey(hash, "a-long-enough-admin-key") {
		t.Error("CheckAdminKey should accept the original key")
	}
	if CheckAdminKey(hash, "another-admin-key-value") {
		t.Error("CheckAdminKey should reject a different key")
	}
	if CheckAdminKey("", "a-long-enough-admin-key") {
		t.Error("empty hash must never match")
	}
}

// --- Context helpers tests ---

func TestAccountContext_RoundTrip(t *testing.T) {
	acct := &Account{ID: "u1", Name: "Ada", RateLimit: 100}
	got := AccountFromContext(ContextWithAccount(context.Background(), acct))
	if got == nil || got.ID != "u1" {
		t.Fatalf("expected account u1 from context, got %+v", got)
	}
	if AccountFromContext(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

// --- UserAuthMiddleware tests ---

func TestUserAuthMiddleware(t *testing.T) {
	plaintext := "jeton_validkey1234567890abcdefghij"
	store := &mockAccountLookup{
		accounts: map[string]*Account{
			HashKey(plaintext): {ID: "user-1", Name: "Test", RateLimit: 60},
		},
	}
	svc := NewService(store)
	m := newCountingMetrics()
	svc.SetMetrics(m)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountFromContext(r.Context()) == nil {
			t.Error("expected account in context inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid key", "Bearer " + plaintext, http.StatusOK},
		{"invalid key", "Bearer jeton_wrongkey000000000000000000", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header no bearer", "Token " + plaintext, http.StatusUnauthorized},
		{"bearer only no token", "Bearer", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			UserAuthMiddleware(svc)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus != http.StatusOK {
				assertJSONError(t, rr, "unauthorized")
			}
		})
	}

	if m.successes["user"] != 1 || m.failures["user"] != 4 {
		t.Errorf("unexpected auth metrics: successes=%v failures=%v", m.successes, m.failures)
	}
}

// --- AdminAuthMiddleware tests ---

func TestAdminAuthMiddleware(t *testing.T) {
	adminKey := "super-secret-admin-key"
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewService(&mockAccountLookup{})

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid admin key", "Bearer " + adminKey, http.StatusOK},
		{"wrong admin key", "Bearer wrong-key", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Basic " + adminKey, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			AdminAuthMiddleware(svc, string(hash))(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus != http.StatusOK {
				assertJSONError(t, rr, "unauthorized")
			}
		})
	}
}

func TestAdminAuthMiddleware_Disabled(t *testing.T) {
	svc := NewService(&mockAccountLookup{})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()

	AdminAuthMiddleware(svc, "")(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	assertJSONError(t, rr, "forbidden")
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder, code string) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != code {
		t.Errorf("expected error code %q, got %q", code, resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
