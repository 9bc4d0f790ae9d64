package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HistoryRow struct {
	ID          string
	TaskID      string
	OwnerID     string
	DisplayName string
	TaskName    string
	Duration    int64
	Completed   bool
	CreatedAt   time.Time
}

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, row *HistoryRow) error {
	query := `
		INSERT INTO history (task_id, owner_id, display_name, task_name, duration_seconds, completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		row.TaskID, row.OwnerID, row.DisplayName, row.TaskName, row.Duration, row.Completed).
		Scan(&row.ID, &row.CreatedAt)
}

// ListByOwner — курсорная пагинация, свежие записи первыми.
func (r *HistoryRepository) ListByOwner(ctx context.Context, ownerID string, limit int, cursorStr string) ([]HistoryRow, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT id, task_id, owner_id, display_name, task_name, duration_seconds, completed, created_at
		FROM history
		WHERE owner_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2
		       OR (created_at = $2 AND id < $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, query, ownerID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.ID, &h.TaskID, &h.OwnerID, &h.DisplayName,
			&h.TaskName, &h.Duration, &h.Completed, &h.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, h)
	}

	var nextCursor string
	if len(out) == limit {
		last := out[len(out)-1]
		nextCursor, _ = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return out, nextCursor, rows.Err()
}
