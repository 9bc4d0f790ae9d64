package domain

import "fmt"

type EventKind string

const (
	EventJoin      EventKind = "join"
	EventLeave     EventKind = "leave"
	EventComplete  EventKind = "complete"
	EventQuit      EventKind = "quit"
	EventMilestone EventKind = "milestone"
)

// Event — короткоживущее кросс-клиентское уведомление под
// GlobalEffects/{roomId}/events/{eventId}. Создатель обязан удалить его
// после TTL независимо от того, видел ли его кто-то.
type Event struct {
	UserID      string    `json:"userId"`
	Kind        EventKind `json:"type"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Duration    int64     `json:"duration,omitempty"` // секунды
	Message     string    `json:"message,omitempty"`
	TSUnixMilli int64     `json:"timestamp"`
}

// EventID — collision-resistant id: владелец + вид + момент создания.
func (e Event) EventID() string {
	return fmt.Sprintf("%s-%s-%d", e.UserID, e.Kind, e.TSUnixMilli)
}

// FlyingMessage — сопровождающее сообщение под
// GlobalEffects/{roomId}/flyingMessages/{id}; свой, более короткий TTL.
type FlyingMessage struct {
	Text        string `json:"text"`
	Color       string `json:"color,omitempty"`
	UserID      string `json:"userId"`
	TSUnixMilli int64  `json:"timestamp"`
}

// HistoryEntry — запись в rooms/{roomId}/history. Для quit дописывается
// напрямую (не через reconciliation), с пометкой "(Quit Early)".
type HistoryEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Task        string `json:"task"`
	Duration    string `json:"duration"` // hh:mm:ss
	TSUnixMilli int64  `json:"timestamp"`
	Completed   bool   `json:"completed"`
}

// HistoryUpdate — пинг rooms/{roomId}/historyUpdate после удачного
// сохранения в долговременное хранилище.
type HistoryUpdate struct {
	TSUnixMilli int64  `json:"timestamp"`
	UserID      string `json:"userId"`
}
