// Package middleware содержит HTTP middleware сервиса KelevKef.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kelevkef/kelevkef-system/internal/platform"
)

type contextKey string

const userIDKey contextKey = "userID"

// SessionCookieName — имя cookie с токеном сессии платформы.
const SessionCookieName = "kk_session"

// SessionVerifier проверяет токен сессии и возвращает идентификатор пользователя.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

// AuthMiddleware выполняет проверку сессии пользователя через платформу.
// Сам сервис сессии не выпускает и не хранит: токен из cookie (или заголовка
// Authorization) передаётся платформе на проверку.
type AuthMiddleware struct {
	verifier SessionVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным верификатором.
func NewAuthMiddleware(verifier SessionVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// Middleware проверяет сессию и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeUnauthorized(w)
			return
		}

		userID, err := a.verifier.VerifySession(r.Context(), token)
		if err != nil {
			if !errors.Is(err, platform.ErrSessionInvalid) {
				a.logger.Error("session verification error", zap.Error(err))
			}
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Не авторизован"})
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
