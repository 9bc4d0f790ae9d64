package http

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateRoomRequest struct {
	Kind string `json:"kind"` // public | private
	Slug string `json:"slug,omitempty"`
}

type RoomItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Slug      string    `json:"url"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomsListResponse struct {
	Items []RoomItem `json:"items"`
}

type JoinRoomResponse struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type MemberItem struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsPremium   bool   `json:"is_premium"`
	LastSeen    int64  `json:"last_seen,omitempty"`
}

type MembersResponse struct {
	Items []MemberItem `json:"items"`
}

type StartTaskRequest struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	IsPremium   bool   `json:"is_premium,omitempty"`
}

type TaskItem struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Elapsed int64  `json:"time_spent"`
}

type FinishTaskRequest struct {
	TaskID  string `json:"task_id"`
	Elapsed int64  `json:"elapsed"`
}

type HistoryItem struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	OwnerID   string    `json:"owner_id"`
	TaskName  string    `json:"task_name"`
	Duration  int64     `json:"duration_seconds"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Items      []HistoryItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type LeaderboardItem struct {
	OwnerID      string `json:"owner_id"`
	DisplayName  string `json:"display_name"`
	TotalSeconds int64  `json:"total_seconds"`
	TasksDone    int64  `json:"tasks_done"`
}

type LeaderboardResponse struct {
	Items []LeaderboardItem `json:"items"`
}

type MilestoneResponse struct {
	ShouldShowPopup bool  `json:"should_show_popup"` // клиент показывает попап, не вычисляя рубежи сам
	TasksDone       int64 `json:"tasks_done"`
	TotalSeconds    int64 `json:"total_seconds"`
	Crossed         int64 `json:"crossed,omitempty"`
	Next            int64 `json:"next"`
	Pending         bool  `json:"pending"` // есть ли ещё не подтверждённые дельты
}
