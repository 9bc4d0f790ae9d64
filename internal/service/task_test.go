package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/queue"
	"github.com/focusroom/presence-service/internal/reconcile"
	"github.com/focusroom/presence-service/internal/rtstore"
)

func newTaskFixture(t *testing.T) (*TaskService, *rtstore.Memory, *queue.Memory) {
	t.Helper()
	store := rtstore.NewMemory()
	jobs := queue.NewMemory()
	broadcast := NewBroadcastService(store, time.Minute, time.Minute)
	svc := NewTaskService(store, broadcast, jobs, 5*time.Millisecond)
	return svc, store, jobs
}

func drainJobs(t *testing.T, jobs *queue.Memory) []reconcile.TaskFinishedJob {
	t.Helper()
	var got []reconcile.TaskFinishedJob
	jobs.Register(reconcile.JobTypeTaskFinished, func(ctx context.Context, j queue.Job) error {
		dec, err := reconcile.DecodeTaskFinished(j)
		if err != nil {
			t.Fatalf("decode job: %v", err)
		}
		got = append(got, dec)
		return nil
	})
	jobs.Drain(context.Background())
	return got
}

func TestStartRejectsLongName(t *testing.T) {
	svc, _, _ := newTaskFixture(t)

	long := strings.Repeat("я", domain.MaxTaskNameLen+1)
	if _, err := svc.Start(context.Background(), "r1", domain.Member{ID: "u1"}, long, nil); err != domain.ErrTaskNameTooLong {
		t.Fatalf("expected ErrTaskNameTooLong, got %v", err)
	}

	// ровно на лимите — ок
	ok := strings.Repeat("я", domain.MaxTaskNameLen)
	if _, err := svc.Start(context.Background(), "r1", domain.Member{ID: "u1"}, ok, nil); err != nil {
		t.Fatalf("name at limit must pass: %v", err)
	}
}

func TestStartSecondTaskRejected(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "write tests", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "another", nil); err != domain.ErrTaskAlreadyActive {
		t.Fatalf("expected ErrTaskAlreadyActive, got %v", err)
	}

	// другой владелец не ограничен
	if _, err := svc.Start(ctx, "r1", domain.Member{ID: "u2"}, "own task", nil); err != nil {
		t.Fatalf("second owner start: %v", err)
	}
}

func TestStartWritesTaskBufferAndActiveWorker(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	task, err := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "focus", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if found, _ := store.Get(ctx, rtstore.TaskPath("u1", task.ID), nil); !found {
		t.Fatal("task record missing")
	}
	var ts domain.TimerState
	if found, _ := store.Get(ctx, rtstore.TimerStatePath("u1"), &ts); !found || !ts.Running || ts.TaskID != task.ID {
		t.Fatalf("unexpected timer state: found=%v %+v", found, ts)
	}
	if found, _ := store.Get(ctx, rtstore.LastTaskPath("u1"), nil); !found {
		t.Fatal("LastTask missing")
	}
	var aw map[string]string
	if found, _ := store.Get(ctx, rtstore.ActiveWorkerPath("u1"), &aw); !found || aw["taskId"] != task.ID || aw["roomId"] != "r1" {
		t.Fatalf("unexpected ActiveWorker: found=%v %v", found, aw)
	}
}

func TestCompleteLongTaskBroadcasts(t *testing.T) {
	svc, store, jobs := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1", DisplayName: "Ann"}, "deep work", nil)

	if err := svc.Complete(ctx, "u1", task.ID, 400); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// 400s >= планки: эфемерный эвент есть
	events, _ := store.Children(ctx, rtstore.EventsPrefix("r1"))
	if len(events) != 1 {
		t.Fatalf("expected 1 ephemeral event, got %d", len(events))
	}
	var ev domain.Event
	if _, err := store.Get(ctx, events[0], &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Kind != domain.EventComplete || ev.Duration != 400 || ev.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// эфемерное состояние снято, статус дописан
	if found, _ := store.Get(ctx, rtstore.ActiveWorkerPath("u1"), nil); found {
		t.Fatal("ActiveWorker must be removed")
	}
	if found, _ := store.Get(ctx, rtstore.TimerStatePath("u1"), nil); found {
		t.Fatal("timer state must be removed")
	}
	var final domain.Task
	if _, err := store.Get(ctx, rtstore.TaskPath("u1", task.ID), &final); err != nil {
		t.Fatalf("read task: %v", err)
	}
	if final.Status != domain.TaskCompleted || final.Elapsed != 400 {
		t.Fatalf("unexpected final task: %+v", final)
	}

	got := drainJobs(t, jobs)
	if len(got) != 1 || got[0].TaskID != task.ID || got[0].Status != domain.TaskCompleted || got[0].Duration != 400 {
		t.Fatalf("unexpected reconciliation jobs: %+v", got)
	}
}

func TestCompleteShortTaskSkipsBroadcast(t *testing.T) {
	svc, store, jobs := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "quick fix", nil)

	if err := svc.Complete(ctx, "u1", task.ID, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// планка не добрана: эвента нет, но задача завершена и job ушёл
	events, _ := store.Children(ctx, rtstore.EventsPrefix("r1"))
	if len(events) != 0 {
		t.Fatalf("short task must not broadcast, got %d events", len(events))
	}
	got := drainJobs(t, jobs)
	if len(got) != 1 || got[0].Duration != 10 {
		t.Fatalf("reconciliation job must be sent regardless of threshold: %+v", got)
	}
}

func TestCompleteUnknownTask(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	if err := svc.Complete(ctx, "u1", "nope", 10); err != domain.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "one", nil)
	if err := svc.Complete(ctx, "u1", task.ID, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// повторное завершение того же экземпляра — уже не найдено
	if err := svc.Complete(ctx, "u1", task.ID, 10); err != domain.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound on double complete, got %v", err)
	}
}

func TestQuitAppendsHistoryAndFlyingMessage(t *testing.T) {
	svc, store, jobs := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1", DisplayName: "Ann"}, "essay", nil)

	if err := svc.Quit(ctx, "u1", task.ID, 10); err != nil {
		t.Fatalf("quit: %v", err)
	}

	// короткий quit: броадкаста нет, но история и flying message есть
	events, _ := store.Children(ctx, rtstore.EventsPrefix("r1"))
	if len(events) != 0 {
		t.Fatalf("10s quit must not broadcast, got %d events", len(events))
	}

	hist, _ := store.Children(ctx, rtstore.HistoryPrefix("r1"))
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
	var entry domain.HistoryEntry
	if _, err := store.Get(ctx, hist[0], &entry); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if !strings.HasSuffix(entry.Task, "(Quit Early)") || entry.Completed {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if entry.Duration != "00:10" {
		t.Fatalf("expected 00:10 duration, got %q", entry.Duration)
	}

	msgs, _ := store.Children(ctx, rtstore.FlyingMessagesPrefix("r1"))
	if len(msgs) != 1 {
		t.Fatalf("expected flying message, got %d", len(msgs))
	}

	// задача стёрта целиком
	if found, _ := store.Get(ctx, rtstore.TaskPath("u1", task.ID), nil); found {
		t.Fatal("quit task record must be removed")
	}
	if found, _ := store.Get(ctx, rtstore.TimerStatePath("u1"), nil); found {
		t.Fatal("timer state must be removed")
	}

	got := drainJobs(t, jobs)
	if len(got) != 1 || got[0].Status != domain.TaskQuit {
		t.Fatalf("unexpected reconciliation jobs: %+v", got)
	}
}

func TestQuitZeroElapsedIsSilent(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1", DisplayName: "Ann"}, "barely started", nil)

	if err := svc.Quit(ctx, "u1", task.ID, 0); err != nil {
		t.Fatalf("quit: %v", err)
	}

	hist, _ := store.Children(ctx, rtstore.HistoryPrefix("r1"))
	msgs, _ := store.Children(ctx, rtstore.FlyingMessagesPrefix("r1"))
	if len(hist) != 0 || len(msgs) != 0 {
		t.Fatalf("zero-elapsed quit must be silent: hist=%d msgs=%d", len(hist), len(msgs))
	}
}

func TestQuitLongTaskBroadcasts(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1", DisplayName: "Ann"}, "long grind", nil)

	if err := svc.Quit(ctx, "u1", task.ID, domain.MinBroadcastSeconds); err != nil {
		t.Fatalf("quit: %v", err)
	}

	events, _ := store.Children(ctx, rtstore.EventsPrefix("r1"))
	if len(events) != 1 {
		t.Fatalf("expected 1 quit event, got %d", len(events))
	}
	var ev domain.Event
	_, _ = store.Get(ctx, events[0], &ev)
	if ev.Kind != domain.EventQuit {
		t.Fatalf("expected quit event, got %+v", ev)
	}
}

func TestHeartbeatStopsBeforeCompletionReturns(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "watch the clock", nil)

	// дождаться хотя бы одной heartbeat-записи
	deadline := time.Now().Add(time.Second)
	for {
		if found, _ := store.Get(ctx, rtstore.HeartbeatPath("u1"), nil); found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never written")
		}
		time.Sleep(time.Millisecond)
	}

	if err := svc.Complete(ctx, "u1", task.ID, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if found, _ := store.Get(ctx, rtstore.HeartbeatPath("u1"), nil); found {
		t.Fatal("heartbeat must be gone when complete returns")
	}

	// таймер остановлен до удаления: stale-запись не воскресает
	time.Sleep(30 * time.Millisecond)
	if found, _ := store.Get(ctx, rtstore.HeartbeatPath("u1"), nil); found {
		t.Fatal("heartbeat resurrected after completion")
	}
}

func TestDisconnectCleansOrphanedTask(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	sess := rtstore.NewSession("u1")
	task, err := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "doomed", sess)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	sess.Close(ctx)

	if found, _ := store.Get(ctx, rtstore.TimerStatePath("u1"), nil); found {
		t.Fatal("timer state must be cleaned on disconnect")
	}
	if found, _ := store.Get(ctx, rtstore.ActiveWorkerPath("u1"), nil); found {
		t.Fatal("ActiveWorker must be cleaned on disconnect")
	}
	if _, ok := svc.ActiveTask("u1"); ok {
		t.Fatal("local timer must be dropped")
	}
	// завершение исчезнувшей задачи — уже не найдено
	if err := svc.Complete(ctx, "u1", task.ID, 10); err != domain.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	// и новая задача стартует свободно
	if _, err := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "fresh", nil); err != nil {
		t.Fatalf("restart after disconnect: %v", err)
	}
}

func TestCompleteCancelsDisconnectCleanup(t *testing.T) {
	svc, store, _ := newTaskFixture(t)
	ctx := context.Background()

	sess := rtstore.NewSession("u1")
	task, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "survivor", sess)

	if err := svc.Complete(ctx, "u1", task.ID, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// новая задача переживает обрыв старой сессии: её cleanup снят
	fresh, _ := svc.Start(ctx, "r1", domain.Member{ID: "u1"}, "next", nil)
	sess.Close(ctx)

	if _, ok := svc.ActiveTask("u1"); !ok {
		t.Fatal("fresh task must survive stale session close")
	}
	var ts domain.TimerState
	if found, _ := store.Get(ctx, rtstore.TimerStatePath("u1"), &ts); !found || ts.TaskID != fresh.ID {
		t.Fatalf("fresh timer state must survive: found=%v %+v", found, ts)
	}
}
