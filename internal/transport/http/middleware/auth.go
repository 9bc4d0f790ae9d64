package httpmw

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	ctxKeyToken  ctxKey = "token"
	ctxKeyUserID ctxKey = "user_id"
)

// простая авторизация: требуем Bearer + X-User-ID, без валидации токена.
// ID пользователя — непрозрачная строка, сервис её не интерпретирует.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
			return
		}

		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid == "" {
			http.Error(w, `{"error":"missing X-User-ID"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, strings.TrimSpace(auth[7:]))
		ctx = context.WithValue(ctx, ctxKeyUserID, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyUserID); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
