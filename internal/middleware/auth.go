// Package middleware содержит HTTP middleware сервиса clientbook.
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// AuthMiddleware проверяет API-токен в заголовке Authorization.
type AuthMiddleware struct {
	tokenSum []byte
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой токен отключает проверку.
func NewAuthMiddleware(token string) *AuthMiddleware {
	if token == "" {
		return &AuthMiddleware{}
	}
	return &AuthMiddleware{tokenSum: digest(token)}
}

// Enabled сообщает, настроен ли токен.
func (a *AuthMiddleware) Enabled() bool {
	return len(a.tokenSum) > 0
}

// Middleware пропускает запрос дальше только с верным токеном.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || !hmac.Equal(digest(token), a.tokenSum) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="clientbook"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}

// digest выравнивает длину сравниваемых значений.
func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}
