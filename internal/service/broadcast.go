package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/rtstore"

	"github.com/google/uuid"
)

// BroadcastService — fan-out короткоживущих кросс-клиентских событий.
// Публикация и отложенное удаление — независимые записи: упавший после
// publish издатель оставляет stale-событие, подписчик может отрисовать
// его с опозданием. Доставка best-effort, at-most-once.
type BroadcastService struct {
	store    rtstore.Store
	eventTTL time.Duration
	msgTTL   time.Duration
	now      func() time.Time

	// afterFunc подменяется в тестах
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewBroadcastService(store rtstore.Store, eventTTL, msgTTL time.Duration) *BroadcastService {
	if eventTTL <= 0 {
		eventTTL = 10 * time.Second
	}
	if msgTTL <= 0 {
		msgTTL = 7 * time.Second
	}
	return &BroadcastService{
		store:     store,
		eventTTL:  eventTTL,
		msgTTL:    msgTTL,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// Publish пишет событие под room-scoped путь с collision-resistant id
// и планирует удаление ровно этого пути после TTL — независимо от того,
// увидел ли его кто-нибудь.
func (s *BroadcastService) Publish(ctx context.Context, roomID string, ev domain.Event) error {
	if ev.TSUnixMilli == 0 {
		ev.TSUnixMilli = s.now().UnixMilli()
	}
	path := rtstore.EventPath(roomID, ev.EventID())
	if err := s.store.Set(ctx, path, ev); err != nil {
		return fmt.Errorf("store.Set event: %w", err)
	}

	s.afterFunc(s.eventTTL, func() {
		if err := s.store.Delete(context.Background(), path); err != nil {
			slog.Warn("event ttl delete failed", "path", path, "err", err)
		}
	})
	return nil
}

// PublishFlyingMessage — сопровождающее сообщение с коротким TTL.
func (s *BroadcastService) PublishFlyingMessage(ctx context.Context, roomID string, msg domain.FlyingMessage) error {
	if msg.TSUnixMilli == 0 {
		msg.TSUnixMilli = s.now().UnixMilli()
	}
	id := fmt.Sprintf("%s-quit-%d", msg.UserID, msg.TSUnixMilli)
	path := rtstore.FlyingMessagePath(roomID, id)
	if err := s.store.Set(ctx, path, msg); err != nil {
		return fmt.Errorf("store.Set flying message: %w", err)
	}

	s.afterFunc(s.msgTTL, func() {
		if err := s.store.Delete(context.Background(), path); err != nil {
			slog.Warn("flying message ttl delete failed", "path", path, "err", err)
		}
	})
	return nil
}

// AppendQuitHistory дописывает "quit early" запись в историю комнаты
// напрямую, без reconciliation.
func (s *BroadcastService) AppendQuitHistory(ctx context.Context, roomID string, entry domain.HistoryEntry) error {
	if entry.TSUnixMilli == 0 {
		entry.TSUnixMilli = s.now().UnixMilli()
	}
	path := rtstore.HistoryEntryPath(roomID, uuid.NewString())
	if err := s.store.Set(ctx, path, entry); err != nil {
		return fmt.Errorf("store.Set history: %w", err)
	}
	return nil
}

// NotifyHistoryUpdate — пинг подписчикам после удачного сохранения в
// долговременное хранилище.
func (s *BroadcastService) NotifyHistoryUpdate(ctx context.Context, roomID, userID string) error {
	return s.store.Set(ctx, rtstore.HistoryUpdatePath(roomID), domain.HistoryUpdate{
		TSUnixMilli: s.now().UnixMilli(),
		UserID:      userID,
	})
}

// Subscribe — ленивый бесконечный поток событий комнаты; перезапускаем
// заново при повторной подписке. Удаления по TTL отфильтровываются,
// дедупликация по event id — забота подписчика.
func (s *BroadcastService) Subscribe(ctx context.Context, roomID string) (<-chan domain.Event, func()) {
	changes, cancel := s.store.Watch(ctx, rtstore.EventsPrefix(roomID))
	out := make(chan domain.Event, 16)

	go func() {
		defer close(out)
		for c := range changes {
			if c.Deleted() {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal(c.Value, &ev); err != nil {
				slog.Debug("bad event payload", "path", c.Path, "err", err)
				continue
			}
			select {
			case out <- ev:
			default:
				slog.Warn("event subscriber overflow", "room", roomID)
			}
		}
	}()

	return out, cancel
}

// Events — одноразовый снимок текущего набора событий комнаты.
func (s *BroadcastService) Events(ctx context.Context, roomID string) ([]domain.Event, error) {
	paths, err := s.store.Children(ctx, rtstore.EventsPrefix(roomID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(paths))
	for _, p := range paths {
		var ev domain.Event
		if found, err := s.store.Get(ctx, p, &ev); err != nil {
			return nil, err
		} else if found {
			out = append(out, ev)
		}
	}
	return out, nil
}
