package reconcile

import (
	"context"

	"github.com/focusroom/presence-service/internal/postgres"
)

// PostgresDurable — DurableStore поверх pgx-репозиториев.
type PostgresDurable struct {
	tasks   *postgres.TaskRepository
	history *postgres.HistoryRepository
	stats   *postgres.StatsRepository
}

func NewPostgresDurable(tasks *postgres.TaskRepository, history *postgres.HistoryRepository, stats *postgres.StatsRepository) *PostgresDurable {
	return &PostgresDurable{tasks: tasks, history: history, stats: stats}
}

var _ DurableStore = (*PostgresDurable)(nil)

func (d *PostgresDurable) SaveFinishedTask(ctx context.Context, job TaskFinishedJob) (bool, error) {
	_, already, err := d.tasks.UpsertFinished(ctx, job.TaskID, job.OwnerID, job.TaskName, job.Status, job.Duration)
	return already, err
}

func (d *PostgresDurable) AppendHistory(ctx context.Context, job TaskFinishedJob) error {
	row := &postgres.HistoryRow{
		TaskID:      job.TaskID,
		OwnerID:     job.OwnerID,
		DisplayName: job.DisplayName,
		TaskName:    job.TaskName,
		Duration:    job.Duration,
		Completed:   true,
	}
	return d.history.Append(ctx, row)
}

func (d *PostgresDurable) OwnerTotals(ctx context.Context, ownerID string) (Totals, error) {
	st, err := d.stats.OwnerStats(ctx, ownerID)
	if err != nil {
		return Totals{}, err
	}
	return Totals{TasksDone: st.TasksDone, TotalSeconds: st.TotalSeconds}, nil
}
