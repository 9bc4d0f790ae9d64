package domain

import "time"

type RoomKind string

const (
	RoomPublic  RoomKind = "public"
	RoomPrivate RoomKind = "private"
)

// Room — транзиентная (public) или постоянная (private) комната.
// Public без участников не живёт: create-on-demand, destroy-on-empty.
type Room struct {
	ID        string    `json:"id"`
	Kind      RoomKind  `json:"kind"`
	Slug      string    `json:"url"` // человекочитаемый handle, напр. swift-tiger-42
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
