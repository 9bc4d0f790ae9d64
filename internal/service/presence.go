package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/rtstore"

	"github.com/google/uuid"
)

// slugIndexPath — индекс занятых slug-ов private-комнат.
func slugIndexPath(slug string) string { return "slugs/" + slug }

type slugIndexEntry struct {
	RoomID string `json:"roomId"`
}

// PresenceService владеет членством в комнатах: join, leave и
// destroy-when-empty для public-комнат.
type PresenceService struct {
	store rtstore.Store
	now   func() time.Time
}

func NewPresenceService(store rtstore.Store) *PresenceService {
	return &PresenceService{store: store, now: time.Now}
}

// CreateRoom создаёт комнату и пишет создателя единственным участником.
// Для private-комнат slug уникален: занятый slug — ErrSlugTaken.
// Для public uniqueness не enforced: два одинаковых slug-а живут как
// независимые комнаты (политика зафиксирована, см. тесты).
func (s *PresenceService) CreateRoom(ctx context.Context, kind domain.RoomKind, creator domain.Member, customSlug string) (*domain.Room, error) {
	slug := customSlug
	if slug == "" {
		slug = generateSlug()
	}

	if kind == domain.RoomPrivate {
		// check-then-set; гонка двух одинаковых запросов принята
		for attempt := 0; ; attempt++ {
			found, err := s.store.Get(ctx, slugIndexPath(slug), nil)
			if err != nil {
				return nil, fmt.Errorf("store.Get slug: %w", err)
			}
			if !found {
				break
			}
			// свой slug пересочинять нельзя — это ответ пользователю
			if customSlug != "" || attempt >= 3 {
				return nil, domain.ErrSlugTaken
			}
			slug = generateSlug()
		}
	}

	room := &domain.Room{
		ID:        uuid.NewString(),
		Kind:      kind,
		Slug:      slug,
		CreatedBy: creator.ID,
		CreatedAt: s.now(),
	}

	if err := s.store.Set(ctx, rtstore.RoomPath(room.ID), room); err != nil {
		return nil, fmt.Errorf("store.Set room: %w", err)
	}
	if kind == domain.RoomPrivate {
		if err := s.store.Set(ctx, slugIndexPath(slug), slugIndexEntry{RoomID: room.ID}); err != nil {
			return nil, fmt.Errorf("store.Set slug: %w", err)
		}
	}
	if err := s.store.Set(ctx, rtstore.MemberPath(room.ID, creator.ID), creator); err != nil {
		return nil, fmt.Errorf("store.Set member: %w", err)
	}

	return room, nil
}

// JoinRoom идемпотентен: участник уже в комнате — no-op. Исчезнувшая
// комната не ошибка для вызывающего: логируем и выходим, клиент
// откатывается к прежнему состоянию. Не блокируется на состоянии задач
// других участников.
func (s *PresenceService) JoinRoom(ctx context.Context, roomID string, m domain.Member, sess *rtstore.Session) error {
	found, err := s.store.Get(ctx, rtstore.RoomPath(roomID), nil)
	if err != nil {
		return fmt.Errorf("store.Get room: %w", err)
	}
	if !found {
		slog.Warn("join: room vanished", "room", roomID, "user", m.ID)
		return nil
	}

	// Обрыв связи идёт тем же путём, что и явный leave: инвариант
	// destroy-on-empty сохраняется и при исчезновении клиента. Cleanup
	// вешается до idempotent-проверки — участник, вошедший раньше по HTTP
	// без сессии, при переподключении по WS обязан его получить.
	if sess != nil {
		userID := m.ID
		sess.OnDisconnect(func(cctx context.Context) {
			err := s.LeaveRoom(cctx, roomID, userID)
			if err != nil && !errors.Is(err, domain.ErrNotInRoom) {
				slog.Warn("disconnect leave failed", "room", roomID, "user", userID, "err", err)
			}
		})
	}

	memberPath := rtstore.MemberPath(roomID, m.ID)
	if found, err := s.store.Get(ctx, memberPath, nil); err != nil {
		return fmt.Errorf("store.Get member: %w", err)
	} else if found {
		return nil // уже внутри
	}

	if err := s.store.Set(ctx, memberPath, m); err != nil {
		return fmt.Errorf("store.Set member: %w", err)
	}

	return nil
}

// LeaveRoom убирает участника и, перечитав member-set один раз, удаляет
// опустевшую public-комнату. check-then-delete не линеаризуем с
// конкурентным join — rejoin, гоняющийся с удалением, может увидеть
// комнату удалённой сразу после входа. Принятая щель (см. DESIGN.md).
func (s *PresenceService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	memberPath := rtstore.MemberPath(roomID, userID)
	if found, err := s.store.Get(ctx, memberPath, nil); err != nil {
		return fmt.Errorf("store.Get member: %w", err)
	} else if !found {
		return domain.ErrNotInRoom
	}

	if err := s.store.Delete(ctx, memberPath); err != nil {
		return fmt.Errorf("store.Delete member: %w", err)
	}

	rest, err := s.store.Children(ctx, rtstore.RoomUsers(roomID))
	if err != nil {
		return fmt.Errorf("store.Children: %w", err)
	}
	if len(rest) > 0 {
		return nil
	}

	var room domain.Room
	found, err := s.store.Get(ctx, rtstore.RoomPath(roomID), &room)
	if err != nil || !found {
		return err
	}
	if room.Kind != domain.RoomPublic {
		return nil // private живёт независимо от занятости
	}

	if err := s.store.Delete(ctx, rtstore.RoomPath(roomID)); err != nil {
		return fmt.Errorf("store.Delete room: %w", err)
	}
	slog.Info("empty public room destroyed", "room", roomID, "slug", room.Slug)
	return nil
}

func (s *PresenceService) Room(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	found, err := s.store.Get(ctx, rtstore.RoomPath(roomID), &room)
	if err != nil {
		return nil, fmt.Errorf("store.Get room: %w", err)
	}
	if !found {
		return nil, domain.ErrRoomNotFound
	}
	return &room, nil
}

// Members возвращает текущий member-set комнаты. Порядок вставки не значим.
func (s *PresenceService) Members(ctx context.Context, roomID string) ([]domain.Member, error) {
	paths, err := s.store.Children(ctx, rtstore.RoomUsers(roomID))
	if err != nil {
		return nil, fmt.Errorf("store.Children: %w", err)
	}
	out := make([]domain.Member, 0, len(paths))
	for _, p := range paths {
		var m domain.Member
		if found, err := s.store.Get(ctx, p, &m); err != nil {
			return nil, err
		} else if found {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListRooms — все живые комнаты (для лобби).
func (s *PresenceService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	paths, err := s.store.Children(ctx, "instances")
	if err != nil {
		return nil, fmt.Errorf("store.Children: %w", err)
	}
	out := make([]domain.Room, 0, len(paths))
	for _, p := range paths {
		var room domain.Room
		if found, err := s.store.Get(ctx, p, &room); err != nil {
			return nil, err
		} else if found {
			out = append(out, room)
		}
	}
	return out, nil
}

// TouchPresence — best-effort обновление last_seen участника.
func (s *PresenceService) TouchPresence(ctx context.Context, roomID, userID string) error {
	path := rtstore.MemberPath(roomID, userID)
	var m domain.Member
	found, err := s.store.Get(ctx, path, &m)
	if err != nil || !found {
		return err
	}
	m.LastSeenUnix = s.now().Unix()
	return s.store.Set(ctx, path, m)
}
