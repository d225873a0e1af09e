// Package middleware содержит HTTP middleware мастера бронирования.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

const sessionCookieName = "booking_session"

// SessionCookies подписывает и проверяет cookie с идентификатором сессии мастера.
type SessionCookies struct {
	secretKey []byte
	ttl       time.Duration
	secure    bool
}

// NewSessionCookies создаёт экземпляр с указанным секретом и временем жизни cookie.
// Пустой секрет заменяется случайным: сессии не переживут перезапуск процесса.
func NewSessionCookies(secret string, ttl time.Duration, secure bool) *SessionCookies {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionCookies{
		secretKey: key,
		ttl:       ttl,
		secure:    secure,
	}
}

// Middleware проверяет cookie сессии и добавляет идентификатор сессии в контекст запроса.
func (c *SessionCookies) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, "no active booking session", http.StatusUnauthorized)
			return
		}

		sessionID, ok := c.parse(cookie.Value)
		if !ok {
			http.Error(w, "no active booking session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Set устанавливает cookie сессии.
func (c *SessionCookies) Set(w http.ResponseWriter, sessionID string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    c.sign(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.ttl > 0 {
		cookie.Expires = time.Now().Add(c.ttl)
		cookie.MaxAge = int(c.ttl.Seconds())
	}

	http.SetCookie(w, cookie)
}

// Clear удаляет cookie сессии.
func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *SessionCookies) sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.secretKey)
	mac.Write([]byte(sessionID))
	return sessionID + "." + hex.EncodeToString(mac.Sum(nil))
}

func (c *SessionCookies) parse(value string) (string, bool) {
	i := strings.LastIndex(value, ".")
	if i <= 0 {
		return "", false
	}

	sessionID := value[:i]
	expected := c.sign(sessionID)

	if !hmac.Equal([]byte(value), []byte(expected)) {
		return "", false
	}

	return sessionID, true
}

// SessionIDFromContext извлекает идентификатор сессии из контекста запроса.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithSessionID кладёт идентификатор сессии в контекст.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
