package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type LeaderboardRow struct {
	OwnerID      string
	DisplayName  string
	TotalSeconds int64
	TasksDone    int64
}

type OwnerStats struct {
	TasksDone    int64
	TotalSeconds int64
}

type StatsRepository struct {
	db *pgxpool.Pool
}

func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Leaderboard — авторитетные суммы по завершённым задачам.
// Quit Early-записи в зачёт не идут.
func (r *StatsRepository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `
		SELECT owner_id,
		       max(display_name),
		       coalesce(sum(duration_seconds), 0),
		       count(*)
		FROM history
		WHERE completed
		GROUP BY owner_id
		ORDER BY coalesce(sum(duration_seconds), 0) DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var lr LeaderboardRow
		if err := rows.Scan(&lr.OwnerID, &lr.DisplayName, &lr.TotalSeconds, &lr.TasksDone); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

func (r *StatsRepository) OwnerStats(ctx context.Context, ownerID string) (*OwnerStats, error) {
	var st OwnerStats
	query := `
		SELECT count(*), coalesce(sum(duration_seconds), 0)
		FROM history
		WHERE owner_id = $1 AND completed`
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&st.TasksDone, &st.TotalSeconds); err != nil {
		return nil, err
	}
	return &st, nil
}
