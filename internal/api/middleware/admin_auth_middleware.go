package middleware

import (
	"context"
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
)

type SessionChecker interface {
	IsAuthenticated(ctx context.Context, token string) (bool, error)
}

// AdminAuthMiddleware 檢查 admin_session cookie 對應的 session 是否還在
func AdminAuthMiddleware(checker SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AdminToken(r)
			if token == "" {
				response.ErrorJSON(w, r, apperr.ErrUnauthenticated)
				return
			}
			ok, err := checker.IsAuthenticated(r.Context(), token)
			if err != nil {
				response.ErrorJSON(w, r, err)
				return
			}
			if !ok {
				response.ErrorJSON(w, r, apperr.ErrUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), constants.AdminSessionKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminToken(r *http.Request) string {
	c, err := r.Cookie(constants.AdminSessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
