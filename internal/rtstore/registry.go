package rtstore

import "sync"

// SessionRegistry — живые liveness-сессии по пользователям. HTTP-путь
// находит здесь сессию своего WS-подключения, чтобы повесить cleanup.
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byUser: make(map[string]*Session)}
}

func (r *SessionRegistry) Put(s *Session) {
	r.mu.Lock()
	r.byUser[s.UserID] = s
	r.mu.Unlock()
}

func (r *SessionRegistry) Get(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Remove снимает сессию, только если зарегистрирована именно она:
// переподключение могло успеть положить новую.
func (r *SessionRegistry) Remove(s *Session) {
	r.mu.Lock()
	if cur, ok := r.byUser[s.UserID]; ok && cur == s {
		delete(r.byUser, s.UserID)
	}
	r.mu.Unlock()
}
