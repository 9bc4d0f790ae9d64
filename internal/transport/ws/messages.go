package ws

import "encoding/json"

// Типы событий, уходящих в WS
const (
	TypeState         = "state"          // снапшот участников комнаты
	TypePeerJoined    = "peer_joined"    // участник появился в member-set
	TypePeerLeft      = "peer_left"      // участник исчез из member-set
	TypeEffect        = "effect"         // эфемерное событие (complete/quit/milestone/...)
	TypeEffectGone    = "effect_gone"    // событие удалено по TTL
	TypeFlyingMessage = "flying_message" // сопровождающее сообщение
	TypeHistoryUpdate = "history_update" // durable-история обновилась, пора перечитать
	TypeChange        = "change"         // прочие изменения путей комнаты как есть
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatePayload struct {
	RoomID  string       `json:"room_id"`
	Members []MemberItem `json:"members"`
}

type MemberItem struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsPremium   bool   `json:"is_premium"`
}

type PeerEventPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// ChangePayload — сырой relay изменения пути: подписчики ключуются
// по точным путям, это часть wire-контракта.
type ChangePayload struct {
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}
