package rtstore

import (
	"context"
	"log/slog"
	"sync"
)

// Session — liveness-сессия одного логического подключения клиента.
// Абстракция над firebase-овским onDisconnect: компоненты регистрируют
// cleanup-и, которые выполнятся, когда сессия закончится (явный Close
// или обрыв транспорта). Регистрация отменяема — это единственные
// cancelable handles наряду с heartbeat-тикером.
type Session struct {
	UserID string

	mu       sync.Mutex
	nextID   int
	cleanups map[int]func(context.Context)
	closed   bool
}

func NewSession(userID string) *Session {
	return &Session{
		UserID:   userID,
		cleanups: make(map[int]func(context.Context)),
	}
}

// OnDisconnect регистрирует cleanup и возвращает его отмену.
// После Close регистрация — no-op.
func (s *Session) OnDisconnect(f func(context.Context)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.cleanups[id] = f
	return func() {
		s.mu.Lock()
		delete(s.cleanups, id)
		s.mu.Unlock()
	}
}

// Close выполняет все зарегистрированные cleanup-и. Идемпотентен.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := make([]func(context.Context), 0, len(s.cleanups))
	for _, f := range s.cleanups {
		fns = append(fns, f)
	}
	s.cleanups = nil
	s.mu.Unlock()

	for _, f := range fns {
		f(ctx)
	}
	slog.Debug("session closed", "user", s.UserID, "cleanups", len(fns))
}

// DeleteOnDisconnect — частый случай: удалить путь при обрыве.
func (s *Session) DeleteOnDisconnect(st Store, path string) (cancel func()) {
	return s.OnDisconnect(func(ctx context.Context) {
		if err := st.Delete(ctx, path); err != nil {
			slog.Warn("disconnect cleanup failed", "path", path, "err", err)
		}
	})
}
