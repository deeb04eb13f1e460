package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/bookstore/internal/model"
)

func issue(t *testing.T, m *AuthMiddleware) string {
	t.Helper()
	token, err := m.IssueToken(model.User{ID: 42, Username: "alice", Role: model.RoleCustomer})
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	return token
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", time.Hour)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal not in context")
		}
		if p.Username != "alice" || p.UserID != 42 || p.Role != model.RoleCustomer {
			t.Fatalf("principal from context = %+v", p)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.SetAuthCookie(w, issue(t, m))
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithBearerHeader(t *testing.T) {
	m := NewAuthMiddleware("test-secret", time.Hour)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, m))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_RejectsInvalidTokens(t *testing.T) {
	signer := NewAuthMiddleware("test-secret", time.Hour)
	other := NewAuthMiddleware("other-secret", time.Hour)
	expired := NewAuthMiddleware("test-secret", time.Nanosecond)

	expiredToken := issue(t, expired)
	time.Sleep(time.Second)

	unknownRole, err := signer.IssueToken(model.User{ID: 7, Username: "mallory", Role: model.Role("SUPERUSER")})
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no token"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "foreign signature", header: "Bearer " + issue(t, other)},
		{name: "expired", header: "Bearer " + expiredToken},
		{name: "wrong scheme", header: "Basic " + issue(t, signer)},
		{name: "unknown role", header: "Bearer " + unknownRole},
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

			signer.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
