package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/queue"
)

type fakeDurable struct {
	saved     map[string]TaskFinishedJob
	history   []TaskFinishedJob
	totals    map[string]Totals
	saveErr   error
	totalsErr error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		saved:  make(map[string]TaskFinishedJob),
		totals: make(map[string]Totals),
	}
}

func (f *fakeDurable) SaveFinishedTask(ctx context.Context, job TaskFinishedJob) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	if _, ok := f.saved[job.TaskID]; ok {
		return true, nil
	}
	f.saved[job.TaskID] = job
	if job.Status == domain.TaskCompleted {
		t := f.totals[job.OwnerID]
		t.TasksDone++
		t.TotalSeconds += job.Duration
		f.totals[job.OwnerID] = t
	}
	return false, nil
}

func (f *fakeDurable) AppendHistory(ctx context.Context, job TaskFinishedJob) error {
	f.history = append(f.history, job)
	return nil
}

func (f *fakeDurable) OwnerTotals(ctx context.Context, ownerID string) (Totals, error) {
	if f.totalsErr != nil {
		return Totals{}, f.totalsErr
	}
	return f.totals[ownerID], nil
}

type fakeNotifier struct {
	events  []domain.Event
	pings   []string // roomID/userID пары
	evRooms []string
}

func (f *fakeNotifier) Publish(ctx context.Context, roomID string, ev domain.Event) error {
	f.events = append(f.events, ev)
	f.evRooms = append(f.evRooms, roomID)
	return nil
}

func (f *fakeNotifier) NotifyHistoryUpdate(ctx context.Context, roomID, userID string) error {
	f.pings = append(f.pings, roomID+"/"+userID)
	return nil
}

func encodeJob(t *testing.T, j TaskFinishedJob) queue.Job {
	t.Helper()
	qj, err := j.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return qj
}

func TestWorkerPersistsCompletedTask(t *testing.T) {
	durable := newFakeDurable()
	notify := &fakeNotifier{}
	w := NewWorker(durable, NewAggregates(), notify)

	job := TaskFinishedJob{
		TaskID: "t1", OwnerID: "u1", RoomID: "r1",
		TaskName: "deep work", DisplayName: "Ann",
		Status: domain.TaskCompleted, Duration: 400,
	}
	if err := w.Handle(context.Background(), encodeJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(durable.saved) != 1 || len(durable.history) != 1 {
		t.Fatalf("expected save+history, got saved=%d history=%d", len(durable.saved), len(durable.history))
	}
	if len(notify.pings) != 1 || notify.pings[0] != "r1/u1" {
		t.Fatalf("expected history update ping, got %v", notify.pings)
	}

	// агрегаты: база обновлена авторитетным refresh-ом, pending снят
	totals := w.agg.Snapshot("u1")
	if totals.TasksDone != 1 || totals.TotalSeconds != 400 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if w.agg.Pending("u1") {
		t.Fatal("pending delta must be replaced by refresh")
	}
}

func TestWorkerIdempotentByTaskID(t *testing.T) {
	durable := newFakeDurable()
	notify := &fakeNotifier{}
	w := NewWorker(durable, NewAggregates(), notify)

	job := TaskFinishedJob{TaskID: "t1", OwnerID: "u1", RoomID: "r1", Status: domain.TaskCompleted, Duration: 100}
	_ = w.Handle(context.Background(), encodeJob(t, job))
	_ = w.Handle(context.Background(), encodeJob(t, job))

	// второй заход — alreadyCompleted: никакой истории, пингов и дельт
	if len(durable.history) != 1 {
		t.Fatalf("duplicate job must not append history: %d", len(durable.history))
	}
	if len(notify.pings) != 1 {
		t.Fatalf("duplicate job must not ping: %d", len(notify.pings))
	}
	totals := w.agg.Snapshot("u1")
	if totals.TasksDone != 1 {
		t.Fatalf("duplicate job must not double count: %+v", totals)
	}
}

func TestWorkerDropsOnPersistFailure(t *testing.T) {
	durable := newFakeDurable()
	durable.saveErr = errors.New("pg down")
	notify := &fakeNotifier{}
	w := NewWorker(durable, NewAggregates(), notify)

	job := TaskFinishedJob{TaskID: "t1", OwnerID: "u1", Status: domain.TaskCompleted, Duration: 100}
	// log-and-drop: ошибка не возвращается, retry не провоцируется
	if err := w.Handle(context.Background(), encodeJob(t, job)); err != nil {
		t.Fatalf("persist failure must be swallowed, got %v", err)
	}
	if len(durable.history) != 0 || len(notify.pings) != 0 {
		t.Fatal("nothing must happen after failed persist")
	}
	if got := w.agg.Snapshot("u1"); got.TasksDone != 0 {
		t.Fatalf("aggregates must stay untouched: %+v", got)
	}
}

func TestWorkerQuitSkipsAggregates(t *testing.T) {
	durable := newFakeDurable()
	notify := &fakeNotifier{}
	w := NewWorker(durable, NewAggregates(), notify)

	job := TaskFinishedJob{TaskID: "t1", OwnerID: "u1", RoomID: "r1", Status: domain.TaskQuit, Duration: 700}
	if err := w.Handle(context.Background(), encodeJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// quit фиксируется в tasks, но история/агрегаты/вехи не трогаются
	if len(durable.saved) != 1 {
		t.Fatal("quit must still be persisted")
	}
	if len(durable.history) != 0 || len(notify.pings) != 0 || len(notify.events) != 0 {
		t.Fatal("quit must not touch history, pings or milestones")
	}
	if got := w.agg.Snapshot("u1"); got.TasksDone != 0 {
		t.Fatalf("quit must not count: %+v", got)
	}
}

func TestWorkerPublishesMilestone(t *testing.T) {
	durable := newFakeDurable()
	notify := &fakeNotifier{}
	w := NewWorker(durable, NewAggregates(), notify)

	job := TaskFinishedJob{TaskID: "t1", OwnerID: "u1", RoomID: "r1", DisplayName: "Ann", Status: domain.TaskCompleted, Duration: 60}
	_ = w.Handle(context.Background(), encodeJob(t, job))

	// первая задача — порог 1 взят
	if len(notify.events) != 1 {
		t.Fatalf("expected milestone event, got %d", len(notify.events))
	}
	ev := notify.events[0]
	if ev.Kind != domain.EventMilestone || ev.Duration != 1 || ev.UserID != "u1" {
		t.Fatalf("unexpected milestone event: %+v", ev)
	}
	if notify.evRooms[0] != "r1" {
		t.Fatalf("milestone must go to the task's room, got %q", notify.evRooms[0])
	}

	// вторая задача порога не берёт
	job2 := job
	job2.TaskID = "t2"
	_ = w.Handle(context.Background(), encodeJob(t, job2))
	if len(notify.events) != 1 {
		t.Fatalf("no milestone between thresholds, got %d events", len(notify.events))
	}
}

func TestWorkerBadPayloadDropped(t *testing.T) {
	w := NewWorker(newFakeDurable(), NewAggregates(), &fakeNotifier{})

	qj := queue.Job{Type: JobTypeTaskFinished, Payload: []byte("{broken")}
	if err := w.Handle(context.Background(), qj); err != nil {
		t.Fatalf("bad payload must be dropped, got %v", err)
	}
}
