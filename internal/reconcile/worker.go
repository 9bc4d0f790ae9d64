package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/queue"
)

// DurableStore — авторитетное хранилище завершённых задач.
type DurableStore interface {
	// SaveFinishedTask идемпотентен по task id: повторный вызов — no-op
	// с alreadyCompleted=true, дубликат не создаётся.
	SaveFinishedTask(ctx context.Context, job TaskFinishedJob) (alreadyCompleted bool, err error)
	AppendHistory(ctx context.Context, job TaskFinishedJob) error
	OwnerTotals(ctx context.Context, ownerID string) (Totals, error)
}

// Notifier — эфемерные уведомления после удачного переноса.
type Notifier interface {
	Publish(ctx context.Context, roomID string, ev domain.Event) error
	NotifyHistoryUpdate(ctx context.Context, roomID, userID string) error
}

// Worker разгребает очередь "task finished". Неудача логируется и
// теряется: автоматических retry нет, терминальное локальное состояние
// не откатывается никогда. Интерактивный путь этим не блокируется —
// отстать или потерять запись могут только производные агрегаты.
type Worker struct {
	durable DurableStore
	agg     *Aggregates
	notify  Notifier
	now     func() time.Time
}

func NewWorker(durable DurableStore, agg *Aggregates, notify Notifier) *Worker {
	return &Worker{
		durable: durable,
		agg:     agg,
		notify:  notify,
		now:     time.Now,
	}
}

// Register вешает обработчик на очередь.
func (w *Worker) Register(srv queue.Server) {
	srv.Register(JobTypeTaskFinished, w.Handle)
}

func (w *Worker) Handle(ctx context.Context, qj queue.Job) error {
	job, err := DecodeTaskFinished(qj)
	if err != nil {
		slog.Error("reconcile: bad job payload", "err", err)
		return nil // кривой payload ретраить бессмысленно
	}

	already, err := w.durable.SaveFinishedTask(ctx, job)
	if err != nil {
		// log and drop: запись теряется, локальное состояние не трогаем
		slog.Warn("reconcile: persist failed, dropping",
			"task", job.TaskID, "owner", job.OwnerID, "err", err)
		return nil
	}
	if already {
		slog.Debug("reconcile: already completed", "task", job.TaskID)
		return nil
	}

	if job.Status != domain.TaskCompleted {
		return nil // quit фиксируется в tasks, агрегаты и вехи не трогает
	}

	if err := w.durable.AppendHistory(ctx, job); err != nil {
		slog.Warn("reconcile: history append failed", "task", job.TaskID, "err", err)
	}

	// оптимистичная дельта сразу, следом — авторитетный refresh
	w.agg.ApplyDelta(job.OwnerID, job.Duration)

	totals, err := w.durable.OwnerTotals(ctx, job.OwnerID)
	if err != nil {
		slog.Warn("reconcile: totals refresh failed", "owner", job.OwnerID, "err", err)
	} else {
		w.agg.Refresh(job.OwnerID, totals)
	}

	if err := w.notify.NotifyHistoryUpdate(ctx, job.RoomID, job.OwnerID); err != nil {
		slog.Debug("reconcile: history update ping failed", "room", job.RoomID, "err", err)
	}

	// взяли веху — ещё одно эфемерное уведомление
	if err == nil {
		if m, crossed := CrossedMilestone(totals.TasksDone); crossed {
			ev := domain.Event{
				UserID:      job.OwnerID,
				Kind:        domain.EventMilestone,
				DisplayName: job.DisplayName,
				Duration:    m,
				TSUnixMilli: w.now().UnixMilli(),
			}
			if err := w.notify.Publish(ctx, job.RoomID, ev); err != nil {
				slog.Debug("reconcile: milestone publish failed", "owner", job.OwnerID, "err", err)
			}
		}
	}

	return nil
}
