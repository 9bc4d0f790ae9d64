package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/postgres"
	"github.com/focusroom/presence-service/internal/reconcile"
	"github.com/focusroom/presence-service/internal/rtstore"
	"github.com/focusroom/presence-service/internal/service"
	httpmw "github.com/focusroom/presence-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	presenceSvc  *service.PresenceService
	taskSvc      *service.TaskService
	broadcastSvc *service.BroadcastService
	historyRepo  *postgres.HistoryRepository
	statsRepo    *postgres.StatsRepository
	aggregates   *reconcile.Aggregates
	sessions     *rtstore.SessionRegistry
}

func NewHandler(
	presence *service.PresenceService,
	task *service.TaskService,
	broadcast *service.BroadcastService,
	history *postgres.HistoryRepository,
	stats *postgres.StatsRepository,
	agg *reconcile.Aggregates,
	sessions *rtstore.SessionRegistry,
) *Handler {
	return &Handler{
		presenceSvc:  presence,
		taskSvc:      task,
		broadcastSvc: broadcast,
		historyRepo:  history,
		statsRepo:    stats,
		aggregates:   agg,
		sessions:     sessions,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func roomItem(room *domain.Room) RoomItem {
	return RoomItem{
		ID:        room.ID,
		Kind:      string(room.Kind),
		Slug:      room.Slug,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
	}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("handler.CreateRoom.Decode:", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	kind := domain.RoomPublic
	if req.Kind == string(domain.RoomPrivate) {
		kind = domain.RoomPrivate
	}
	creator := domain.Member{ID: httpmw.UserIDFromCtx(r.Context())}

	room, err := h.presenceSvc.CreateRoom(r.Context(), kind, creator, req.Slug)
	if err != nil {
		if errors.Is(err, domain.ErrSlugTaken) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "slug taken"})
			return
		}
		slog.Error("handler.CreateRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, roomItem(room))
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.presenceSvc.ListRooms(r.Context())
	if err != nil {
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms))}
	for i := range rooms {
		resp.Items = append(resp.Items, roomItem(&rooms[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.presenceSvc.Room(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, roomItem(room))
}

// POST /rooms/{id}/join — HTTP-вход без WS. Liveness-сессии у такого
// участника нет: уборка при обрыве появится, когда он откроет сокет.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	var req struct {
		DisplayName string `json:"display_name"`
		IsPremium   bool   `json:"is_premium"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m := domain.Member{ID: userID, DisplayName: req.DisplayName, IsPremium: req.IsPremium}
	sess := h.sessions.Get(userID)
	if err := h.presenceSvc.JoinRoom(r.Context(), roomID, m, sess); err != nil {
		slog.Error("handler.JoinRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, JoinRoomResponse{RoomID: roomID, UserID: userID})
}

// POST /rooms/{id}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	if err := h.presenceSvc.LeaveRoom(r.Context(), roomID, userID); err != nil {
		if errors.Is(err, domain.ErrNotInRoom) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "user not in room"})
			return
		}
		slog.Error("handler.LeaveRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// GET /rooms/{id}/members
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	members, err := h.presenceSvc.Members(r.Context(), roomID)
	if err != nil {
		slog.Error("handler.GetMembers:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := MembersResponse{Items: make([]MemberItem, 0, len(members))}
	for _, m := range members {
		resp.Items = append(resp.Items, MemberItem{
			UserID:      m.ID,
			DisplayName: m.DisplayName,
			IsPremium:   m.IsPremium,
			LastSeen:    m.LastSeenUnix,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}/events — текущие живые эфемерные эвенты комнаты.
func (h *Handler) GetRoomEvents(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	events, err := h.broadcastSvc.Events(r.Context(), roomID)
	if err != nil {
		slog.Error("handler.GetRoomEvents:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

// POST /tasks
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	var req StartTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.RoomID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing room_id"})
		return
	}

	owner := domain.Member{ID: userID, DisplayName: req.DisplayName, IsPremium: req.IsPremium}
	sess := h.sessions.Get(userID)

	task, err := h.taskSvc.Start(r.Context(), req.RoomID, owner, req.Name, sess)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNameTooLong):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "task name too long"})
		case errors.Is(err, domain.ErrTaskAlreadyActive):
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "task already active"})
		default:
			slog.Error("handler.StartTask:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusCreated, TaskItem{
		ID:      task.ID,
		OwnerID: task.OwnerID,
		Name:    task.Name,
		Status:  string(task.Status),
		Elapsed: task.Elapsed,
	})
}

// POST /tasks/{taskID}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.finishTask(w, r, h.taskSvc.Complete)
}

// POST /tasks/{taskID}/quit
func (h *Handler) QuitTask(w http.ResponseWriter, r *http.Request) {
	h.finishTask(w, r, h.taskSvc.Quit)
}

func (h *Handler) finishTask(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, ownerID, taskID string, elapsed int64) error,
) {
	userID := httpmw.UserIDFromCtx(r.Context())
	taskID := chi.URLParam(r, "taskID")

	var req FinishTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.Elapsed < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "negative elapsed"})
		return
	}

	if err := op(r.Context(), userID, taskID, req.Elapsed); err != nil {
		if errors.Is(err, domain.ErrAlreadyCompleted) {
			// завершение уже идёт: повторный запрос — штатный no-op
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no active task"})
			return
		}
		slog.Error("handler.finishTask:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /history?limit=&cursor= — прочная история владельца.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	cursor := r.URL.Query().Get("cursor")

	rows, next, err := h.historyRepo.ListByOwner(r.Context(), userID, limit, cursor)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		slog.Error("handler.GetHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := HistoryResponse{Items: make([]HistoryItem, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		resp.Items = append(resp.Items, HistoryItem{
			ID:        row.ID,
			TaskID:    row.TaskID,
			OwnerID:   row.OwnerID,
			TaskName:  row.TaskName,
			Duration:  row.Duration,
			Completed: row.Completed,
			CreatedAt: row.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /leaderboard?limit=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	rows, err := h.statsRepo.Leaderboard(r.Context(), limit)
	if err != nil {
		slog.Error("handler.GetLeaderboard:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := LeaderboardResponse{Items: make([]LeaderboardItem, 0, len(rows))}
	for _, row := range rows {
		resp.Items = append(resp.Items, LeaderboardItem{
			OwnerID:      row.OwnerID,
			DisplayName:  row.DisplayName,
			TotalSeconds: row.TotalSeconds,
			TasksDone:    row.TasksDone,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /milestones — кэшированные суммы пользователя плюс ближайший рубеж.
// Суммы двухфазные: база из прочного стора, поверх — неподтверждённые дельты.
func (h *Handler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	totals := h.aggregates.Snapshot(userID)
	resp := MilestoneResponse{
		TasksDone:    totals.TasksDone,
		TotalSeconds: totals.TotalSeconds,
		Next:         reconcile.NextMilestone(totals.TasksDone),
		Pending:      h.aggregates.Pending(userID),
	}
	if m, ok := reconcile.CrossedMilestone(totals.TasksDone); ok {
		resp.Crossed = m
		resp.ShouldShowPopup = true
	}

	writeJSON(w, http.StatusOK, resp)
}
