// Package middleware содержит HTTP middleware партнёрского леджера.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const partnerIDKey contextKey = "partnerID"

const (
	bearerPrefix    = "Bearer "
	defaultTokenTTL = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный токен партнёра в заголовке Authorization.
// Формат токена: <partnerID>.<unix-время истечения>.<hex HMAC-SHA256>.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Пустой секрет заменяется случайным: выданные токены перестанут действовать после перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       defaultTokenTTL,
		now:       time.Now,
	}
}

// Middleware проверяет токен и добавляет идентификатор партнёра в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		partnerID, ok := a.parseToken(strings.TrimPrefix(header, bearerPrefix))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), partnerIDKey, partnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken выпускает токен партнёра и возвращает его вместе со временем истечения.
func (a *AuthMiddleware) IssueToken(partnerID int64) (string, time.Time) {
	expires := a.now().Add(a.ttl).UTC().Truncate(time.Second)
	payload := strconv.FormatInt(partnerID, 10) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.sign(payload), expires
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(token string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return 0, false
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.sign(payload))) {
		return 0, false
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || a.now().Unix() >= expires {
		return 0, false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// GetPartnerIDFromContext извлекает идентификатор партнёра из контекста запроса.
func GetPartnerIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(partnerIDKey).(int64)
	return id, ok
}

// APIKey пропускает только запросы с заголовком X-Api-Key, равным key.
// Используется для внутренних маршрутов, которые вызывают другие сервисы платформы.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Api-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
