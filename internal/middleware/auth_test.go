package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetPartnerIDFromContext(r.Context())
		if !ok {
			t.Fatalf("partner id not in context")
		}
		if id != 42 {
			t.Fatalf("partner id from context = %d, want 42", id)
		}
	})

	token, expires := m.IssueToken(42)
	if !expires.After(time.Now()) {
		t.Fatalf("token already expired: %v", expires)
	}

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	valid, _ := m.IssueToken(7)
	foreign, _ := other.IssueToken(7)

	expired := NewAuthMiddleware("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * defaultTokenTTL) }
	stale, _ := expired.IssueToken(7)

	tampered := "8" + strings.TrimPrefix(valid, "7")

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "no bearer prefix", header: valid},
		{name: "garbage", header: "Bearer abc"},
		{name: "foreign secret", header: "Bearer " + foreign},
		{name: "expired", header: "Bearer " + stale},
		{name: "tampered id", header: "Bearer " + tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		sent       string
		want       int
	}{
		{name: "matching key", configured: "k1", sent: "k1", want: http.StatusNoContent},
		{name: "wrong key", configured: "k1", sent: "k2", want: http.StatusUnauthorized},
		{name: "missing key", configured: "k1", sent: "", want: http.StatusUnauthorized},
		{name: "not configured", configured: "", sent: "", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/internal/orders", nil)
			if tt.sent != "" {
				r.Header.Set("X-Api-Key", tt.sent)
			}

			APIKey(tt.configured)(next).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
