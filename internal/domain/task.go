package domain

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskActive     TaskStatus = "active"
	TaskCompleted  TaskStatus = "completed"
	TaskQuit       TaskStatus = "quit"
)

// MaxTaskNameLen — лимит на имя задачи (в рунах).
const MaxTaskNameLen = 69

// MinBroadcastSeconds — минимальная длительность, с которой complete/quit
// уходит в эфемерный broadcast. Ниже порога задача всё равно завершается.
const MinBroadcastSeconds = 300

// Task — единица работы одного участника. У владельца может быть
// не больше одной active-задачи одновременно.
type Task struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Elapsed    int64      `json:"timeSpent"` // секунды
	LastActive time.Time  `json:"lastActive"`
}

// Terminal — completed и quit терминальны для данного экземпляра задачи.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskQuit
}

// TimerState — эфемерная запись под TaskBuffer/{userId}/timer_state,
// привязана ровно к одной задаче. Живёт от start до complete/quit/disconnect.
type TimerState struct {
	TaskID  string `json:"taskId"`
	Running bool   `json:"running"`
	Elapsed int64  `json:"elapsed"`
	TSUnix  int64  `json:"ts_unix"`
}

// Heartbeat — периодическая liveness-запись под TaskBuffer/{userId}/heartbeat.
// Staleness используется внешним janitor-ом, не этим сервисом.
type Heartbeat struct {
	TaskID  string `json:"taskId"`
	Elapsed int64  `json:"elapsed"`
	TSUnix  int64  `json:"ts_unix"`
}

// FormatDuration — hh:mm:ss, либо mm:ss если меньше часа.
func FormatDuration(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
