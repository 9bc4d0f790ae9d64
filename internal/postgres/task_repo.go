package postgres

import (
	"context"
	"time"

	"github.com/focusroom/presence-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SavedTask — то, что вернул upsert завершённой задачи.
type SavedTask struct {
	ID         string
	OwnerID    string
	TaskName   string
	Status     domain.TaskStatus
	Duration   int64
	FinishedAt time.Time
}

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

// UpsertFinished — идемпотентный перенос терминальной задачи.
// Повторный вызов с тем же id не создаёт вторую запись: возвращается
// существующая строка и alreadyCompleted=true. Это штатный случай
// (retry, двойной клик), не ошибка.
func (r *TaskRepository) UpsertFinished(
	ctx context.Context,
	taskID, ownerID, name string,
	status domain.TaskStatus,
	duration int64,
) (*SavedTask, bool, error) {
	query := `
		INSERT INTO tasks (id, owner_id, task_name, status, duration_seconds, finished_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO NOTHING
		RETURNING id, owner_id, task_name, status, duration_seconds, finished_at`

	var st SavedTask
	err := r.db.QueryRow(ctx, query, taskID, ownerID, name, status, duration).
		Scan(&st.ID, &st.OwnerID, &st.TaskName, &st.Status, &st.Duration, &st.FinishedAt)
	if err == nil {
		return &st, false, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Конфликт: строка уже есть, читаем её и отвечаем alreadyCompleted.
	query = `
		SELECT id, owner_id, task_name, status, duration_seconds, finished_at
		FROM tasks WHERE id = $1`
	if err := r.db.QueryRow(ctx, query, taskID).
		Scan(&st.ID, &st.OwnerID, &st.TaskName, &st.Status, &st.Duration, &st.FinishedAt); err != nil {
		return nil, false, err
	}
	return &st, true, nil
}
