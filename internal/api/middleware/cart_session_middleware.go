package middleware

import (
	"context"
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/google/uuid"
)

// CartSessionMiddleware 沒有 cart_session cookie 時發一個新的
func CartSessionMiddleware(secure bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if c, err := r.Cookie(constants.CartSessionCookie); err == nil {
				if _, parseErr := uuid.Parse(c.Value); parseErr == nil {
					sessionID = c.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			// 每次都更新 cookie 期限，跟 redis 的 TTL 一致
			http.SetCookie(w, &http.Cookie{
				Name:     constants.CartSessionCookie,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(constants.CartSessionTTL.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), constants.CartSessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetCartSession(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(constants.CartSessionKey).(string)
	return sessionID, ok && sessionID != ""
}
