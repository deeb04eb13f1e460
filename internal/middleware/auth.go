// Package middleware содержит HTTP middleware книжного магазина.
package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/bookstore/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	authCookieName  = "auth_token"
	defaultTokenTTL = 24 * time.Hour
	bearerPrefix    = "bearer "
)

// Principal описывает аутентифицированного субъекта запроса.
type Principal struct {
	Username string
	UserID   int64
	Role     model.Role
}

type tokenClaims struct {
	Role   string `json:"role"`
	UserID int64  `json:"userId"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет JWT из заголовка Authorization или cookie.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       ttl,
	}
}

// IssueToken подписывает токен для пользователя.
func (a *AuthMiddleware) IssueToken(u model.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role:   string(u.Role),
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Middleware проверяет токен и добавляет субъекта в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		p, ok := a.parseToken(raw)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает cookie авторизации с токеном.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (a *AuthMiddleware) parseToken(raw string) (Principal, bool) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return Principal{}, false
	}

	role := model.Role(claims.Role)
	if !role.Valid() {
		return Principal{}, false
	}

	return Principal{
		Username: claims.Subject,
		UserID:   claims.UserID,
		Role:     role,
	}, true
}

// GetPrincipalFromContext извлекает субъекта из контекста запроса.
func GetPrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal кладёт субъекта в контекст.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
