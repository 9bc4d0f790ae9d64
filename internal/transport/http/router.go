package http

import (
	"net/http"
	"time"

	httpmw "github.com/focusroom/presence-service/internal/transport/http/middleware"
	"github.com/focusroom/presence-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, presence httpmw.PresenceToucher, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint: auth у сокета своя, через query params
	r.Get("/ws/rooms/{id}", wsServer.HandleWS)

	// Все маршруты требуют access_token и user_id
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware)
		pr.Use(httpmw.HeartbeatMiddleware(presence))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Post("/join", h.JoinRoom)
				rr.Post("/leave", h.LeaveRoom)
				rr.Get("/members", h.GetMembers)
				rr.Get("/events", h.GetRoomEvents)
			})
		})

		pr.Route("/tasks", func(tk chi.Router) {
			tk.Post("/", h.StartTask)
			tk.Post("/{taskID}/complete", h.CompleteTask)
			tk.Post("/{taskID}/quit", h.QuitTask)
		})

		pr.Get("/history", h.GetHistory)
		pr.Get("/leaderboard", h.GetLeaderboard)
		pr.Get("/milestones", h.GetMilestones)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
