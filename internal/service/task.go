package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/queue"
	"github.com/focusroom/presence-service/internal/reconcile"
	"github.com/focusroom/presence-service/internal/rtstore"

	"github.com/google/uuid"
)

// TaskService — state machine задачи одного участника:
// not_started → active → {completed, quit}. У владельца не больше одной
// active-задачи; Task-record пишет только владелец, write-write конфликтов
// по задаче нет.
type TaskService struct {
	store      rtstore.Store
	broadcast  *BroadcastService
	jobs       queue.Client
	hbInterval time.Duration
	now        func() time.Time

	// feedback — локальная реакция (звук на клиенте); вызывается до любых
	// сетевых операций и никогда не блокируется на них.
	feedback func(kind domain.EventKind, owner string, duration int64)

	mu     sync.Mutex
	active map[string]*activeTimer // ownerID -> таймер active-задачи
}

type activeTimer struct {
	taskID    string
	roomID    string
	name      string
	member    domain.Member
	startedAt time.Time

	hbMu      sync.Mutex
	hbStopped bool
	stop      chan struct{}

	finishing     bool // complete/quit уже идёт, второй вызов — ErrTaskNotFound
	cancelCleanup func()
}

func NewTaskService(store rtstore.Store, broadcast *BroadcastService, jobs queue.Client, hbInterval time.Duration) *TaskService {
	if hbInterval <= 0 {
		hbInterval = 5 * time.Second
	}
	return &TaskService{
		store:      store,
		broadcast:  broadcast,
		jobs:       jobs,
		hbInterval: hbInterval,
		now:        time.Now,
		feedback:   func(domain.EventKind, string, int64) {},
		active:     make(map[string]*activeTimer),
	}
}

// SetFeedback подменяет локальную реакцию на complete/quit.
func (s *TaskService) SetFeedback(f func(kind domain.EventKind, owner string, duration int64)) {
	if f != nil {
		s.feedback = f
	}
}

// Start переводит новую задачу в active, начинает heartbeat и регистрирует
// cleanup на обрыв сессии. Повторный start при живой задаче — ErrTaskAlreadyActive.
func (s *TaskService) Start(ctx context.Context, roomID string, owner domain.Member, name string, sess *rtstore.Session) (*domain.Task, error) {
	if utf8.RuneCountInString(name) > domain.MaxTaskNameLen {
		return nil, domain.ErrTaskNameTooLong
	}

	s.mu.Lock()
	if _, ok := s.active[owner.ID]; ok {
		s.mu.Unlock()
		return nil, domain.ErrTaskAlreadyActive
	}
	t := &activeTimer{
		taskID:    uuid.NewString(),
		roomID:    roomID,
		name:      name,
		member:    owner,
		startedAt: s.now(),
		stop:      make(chan struct{}),
	}
	s.active[owner.ID] = t
	s.mu.Unlock()

	task := &domain.Task{
		ID:         t.taskID,
		OwnerID:    owner.ID,
		Name:       name,
		Status:     domain.TaskActive,
		LastActive: t.startedAt,
	}

	if err := s.store.Set(ctx, rtstore.TaskPath(owner.ID, t.taskID), task); err != nil {
		s.dropActive(owner.ID, t.taskID)
		return nil, fmt.Errorf("store.Set task: %w", err)
	}
	// порядок записей внутри TaskBuffer/{owner} сохраняется (один путь — один писатель)
	_ = s.store.Set(ctx, rtstore.TimerStatePath(owner.ID), domain.TimerState{
		TaskID: t.taskID, Running: true, Elapsed: 0, TSUnix: t.startedAt.Unix(),
	})
	_ = s.store.Set(ctx, rtstore.LastTaskPath(owner.ID), map[string]string{"taskId": t.taskID, "name": name})
	_ = s.store.Set(ctx, rtstore.ActiveWorkerPath(owner.ID), map[string]string{"taskId": t.taskID, "roomId": roomID})

	if sess != nil {
		t.cancelCleanup = sess.OnDisconnect(func(cctx context.Context) {
			s.cleanupVanished(cctx, owner.ID, t)
		})
	}

	go s.heartbeatLoop(t, owner.ID)

	slog.Info("task started", "owner", owner.ID, "task", t.taskID, "room", roomID)
	return task, nil
}

// Complete: порядок шагов значим и несёт нагрузку.
//  1. стоп heartbeat — чтобы stale-запись не гонялась с записью завершения;
//  2. локальный feedback, никогда не ждёт сети;
//  3. эфемерный complete-эвент, только если добрана 5-минутная планка;
//  4. снять ActiveWorker и его disconnect-cleanup;
//  5. снять TimerState и оптимистично пометить задачу completed;
//  6. fire-and-forget job в reconciliation-очередь.
func (s *TaskService) Complete(ctx context.Context, ownerID, taskID string, elapsed int64) error {
	t, err := s.takeActive(ownerID, taskID)
	if err != nil {
		return err
	}

	t.stopHeartbeat()

	s.feedback(domain.EventComplete, ownerID, elapsed)

	if elapsed >= domain.MinBroadcastSeconds {
		ev := s.eventFor(ctx, domain.EventComplete, t, elapsed)
		if err := s.broadcast.Publish(ctx, t.roomID, ev); err != nil {
			slog.Warn("complete broadcast failed", "owner", ownerID, "err", err)
		}
	}

	if err := s.store.Delete(ctx, rtstore.ActiveWorkerPath(ownerID)); err != nil {
		slog.Warn("active worker delete failed", "owner", ownerID, "err", err)
	}
	if t.cancelCleanup != nil {
		t.cancelCleanup()
	}

	if err := s.store.Delete(ctx, rtstore.TimerStatePath(ownerID)); err != nil {
		slog.Warn("timer state delete failed", "owner", ownerID, "err", err)
	}
	_ = s.store.Delete(ctx, rtstore.HeartbeatPath(ownerID))
	task := domain.Task{
		ID:      taskID,
		OwnerID: ownerID,
		Name:    t.name,
		Status:  domain.TaskCompleted,
		Elapsed: elapsed, LastActive: s.now(),
	}
	if err := s.store.Set(ctx, rtstore.TaskPath(ownerID, taskID), task); err != nil {
		slog.Warn("task status write failed", "owner", ownerID, "err", err)
	}

	s.enqueueFinished(ctx, t, domain.TaskCompleted, elapsed)

	s.dropActive(ownerID, taskID)
	slog.Info("task completed", "owner", ownerID, "task", taskID, "elapsed", elapsed)
	return nil
}

// Quit симметричен Complete, но статус quit. "Quit early"-запись истории
// дописывается напрямую (не через очередь), flying message уходит всегда,
// quit-эвент — только с 5-минутной планки. Все store-side удаления
// условные: чистим только то, что всё ещё ссылается на этот taskId.
func (s *TaskService) Quit(ctx context.Context, ownerID, taskID string, elapsed int64) error {
	t, err := s.takeActive(ownerID, taskID)
	if err != nil {
		return err
	}

	t.stopHeartbeat()

	s.feedback(domain.EventQuit, ownerID, elapsed)

	if elapsed > 0 && t.name != "" {
		entry := domain.HistoryEntry{
			UserID:      ownerID,
			DisplayName: t.member.DisplayName,
			Task:        t.name + " (Quit Early)",
			Duration:    domain.FormatDuration(elapsed),
			Completed:   false,
		}
		if err := s.broadcast.AppendQuitHistory(ctx, t.roomID, entry); err != nil {
			slog.Warn("quit history append failed", "owner", ownerID, "err", err)
		}

		if elapsed >= domain.MinBroadcastSeconds {
			ev := s.eventFor(ctx, domain.EventQuit, t, elapsed)
			if err := s.broadcast.Publish(ctx, t.roomID, ev); err != nil {
				slog.Warn("quit broadcast failed", "owner", ownerID, "err", err)
			}
		}

		msg := domain.FlyingMessage{
			Text:   "💀 " + t.member.DisplayName + " folded faster than a lawn chair.",
			Color:  "text-red-500",
			UserID: ownerID,
		}
		if err := s.broadcast.PublishFlyingMessage(ctx, t.roomID, msg); err != nil {
			slog.Warn("flying message failed", "owner", ownerID, "err", err)
		}
	}

	if err := s.store.Delete(ctx, rtstore.ActiveWorkerPath(ownerID)); err != nil {
		slog.Warn("active worker delete failed", "owner", ownerID, "err", err)
	}
	if t.cancelCleanup != nil {
		t.cancelCleanup()
	}

	_ = s.store.Delete(ctx, rtstore.HeartbeatPath(ownerID))
	_ = s.store.Delete(ctx, rtstore.TaskPath(ownerID, taskID))

	// условные удаления: более новая задача могла успеть пересоздать эти
	// записи, их трогать нельзя
	s.deleteIfTask(ctx, rtstore.TimerStatePath(ownerID), taskID)
	s.deleteIfTask(ctx, rtstore.LastTaskPath(ownerID), taskID)

	s.enqueueFinished(ctx, t, domain.TaskQuit, elapsed)

	// локальный сброс — только после того, как все store-side удаления отправлены
	s.dropActive(ownerID, taskID)
	slog.Info("task quit", "owner", ownerID, "task", taskID, "elapsed", elapsed)
	return nil
}

// ActiveTask — текущая active-задача владельца, если есть.
func (s *TaskService) ActiveTask(ownerID string) (taskID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, found := s.active[ownerID]; found {
		return t.taskID, true
	}
	return "", false
}

// --- внутренности ---

func (s *TaskService) takeActive(ownerID, taskID string) (*activeTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.active[ownerID]
	if !ok || t.taskID != taskID {
		return nil, domain.ErrTaskNotFound
	}
	if t.finishing {
		// конкурентный complete/quit уже в полёте: для вызывающего это no-op
		return nil, domain.ErrAlreadyCompleted
	}
	t.finishing = true
	return t, nil
}

func (s *TaskService) dropActive(ownerID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.active[ownerID]; ok && t.taskID == taskID {
		t.stopHeartbeat()
		delete(s.active, ownerID)
	}
}

// heartbeatLoop — периодическая liveness-запись {elapsed, ts}, пока задача
// active. Единственное назначение — staleness для внешнего janitor-а.
func (s *TaskService) heartbeatLoop(t *activeTimer, ownerID string) {
	ticker := time.NewTicker(s.hbInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.hbMu.Lock()
			if t.hbStopped {
				t.hbMu.Unlock()
				return
			}
			hb := domain.Heartbeat{
				TaskID:  t.taskID,
				Elapsed: int64(s.now().Sub(t.startedAt) / time.Second),
				TSUnix:  s.now().Unix(),
			}
			if err := s.store.Set(context.Background(), rtstore.HeartbeatPath(ownerID), hb); err != nil {
				slog.Debug("heartbeat write failed", "owner", ownerID, "err", err)
			}
			t.hbMu.Unlock()
		}
	}
}

// stopHeartbeat гарантирует: после возврата ни одна heartbeat-запись не
// начнётся. Вызывается первым шагом complete/quit — порядок load-bearing.
func (t *activeTimer) stopHeartbeat() {
	t.hbMu.Lock()
	if !t.hbStopped {
		t.hbStopped = true
		close(t.stop)
	}
	t.hbMu.Unlock()
}

// cleanupVanished — владелец исчез посреди задачи: гасим таймер и чистим
// его эфемерное состояние.
func (s *TaskService) cleanupVanished(ctx context.Context, ownerID string, t *activeTimer) {
	t.stopHeartbeat()
	_ = s.store.Delete(ctx, rtstore.HeartbeatPath(ownerID))
	s.deleteIfTask(ctx, rtstore.TimerStatePath(ownerID), t.taskID)
	_ = s.store.Delete(ctx, rtstore.ActiveWorkerPath(ownerID))

	s.mu.Lock()
	if cur, ok := s.active[ownerID]; ok && cur.taskID == t.taskID {
		delete(s.active, ownerID)
	}
	s.mu.Unlock()
	slog.Info("orphaned task state cleaned", "owner", ownerID, "task", t.taskID)
}

// deleteIfTask удаляет путь, только если хранимое значение всё ещё
// ссылается на данный taskId.
func (s *TaskService) deleteIfTask(ctx context.Context, path, taskID string) {
	var ref struct {
		TaskID string `json:"taskId"`
	}
	found, err := s.store.Get(ctx, path, &ref)
	if err != nil {
		slog.Warn("conditional delete read failed", "path", path, "err", err)
		return
	}
	if !found || ref.TaskID != taskID {
		return
	}
	if err := s.store.Delete(ctx, path); err != nil {
		slog.Warn("conditional delete failed", "path", path, "err", err)
	}
}

// eventFor подтягивает имя/фамилию из Users/{id}, фолбэк — display name
// участника.
func (s *TaskService) eventFor(ctx context.Context, kind domain.EventKind, t *activeTimer, elapsed int64) domain.Event {
	var profile domain.UserProfile
	if found, err := s.store.Get(ctx, rtstore.UserPath(t.member.ID), &profile); err != nil || !found {
		profile = domain.UserProfile{DisplayName: t.member.DisplayName}
	}
	return domain.Event{
		UserID:      t.member.ID,
		Kind:        kind,
		DisplayName: t.member.DisplayName,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Duration:    elapsed,
		TSUnixMilli: s.now().UnixMilli(),
	}
}

func (s *TaskService) enqueueFinished(ctx context.Context, t *activeTimer, status domain.TaskStatus, elapsed int64) {
	job, err := reconcile.TaskFinishedJob{
		TaskID:      t.taskID,
		OwnerID:     t.member.ID,
		RoomID:      t.roomID,
		TaskName:    t.name,
		DisplayName: t.member.DisplayName,
		Status:      status,
		Duration:    elapsed,
	}.Encode()
	if err != nil {
		slog.Error("encode finished job", "task", t.taskID, "err", err)
		return
	}
	// fire-and-forget: вызывающий не ждёт и не узнаёт о неудаче
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		slog.Warn("enqueue finished job failed", "task", t.taskID, "err", err)
	}
}
