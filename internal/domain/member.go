package domain

// Member — реплика пользователя в member-set комнаты на время членства.
// Запись принадлежит самому клиенту; другие клиенты её не пишут.
type Member struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	IsPremium    bool   `json:"isPremium"`
	LastSeenUnix int64  `json:"lastSeen,omitempty"`
}

// UserProfile — то, что лежит под Users/{userId} в shared store.
type UserProfile struct {
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}
