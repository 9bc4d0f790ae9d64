package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HeartbeatMiddleware обновляет lastSeen участника, если в пути есть roomID.
type PresenceToucher interface {
	TouchPresence(ctx context.Context, roomID, userID string) error
}

func HeartbeatMiddleware(presence PresenceToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromCtx(r.Context())
			if userID != "" {
				if roomID := chi.URLParam(r, "id"); roomID != "" {
					// best-effort: ошибки не прерывают запрос
					_ = presence.TouchPresence(r.Context(), roomID, userID)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
