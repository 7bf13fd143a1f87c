package db

import (
	"context"

	"automata/internal/types"
)

// CronConfigRepository provides read access to the automata_cron_configs
// table, which declares which task types run on which schedules.
type CronConfigRepository struct {
	db DBTX
}

// NewCronConfigRepository creates a new CronConfigRepository backed by the
// given database connection (pool or transaction).
func NewCronConfigRepository(db DBTX) *CronConfigRepository {
	return &CronConfigRepository{db: db}
}

// ListActive returns all enabled schedule rows. Rows with unknown task types
// or invalid expressions are returned as-is; the orchestrator skips them with
// a log line rather than failing the whole tick.
func (r *CronConfigRepository) ListActive(ctx context.Context) ([]types.CronConfig, error) {
	rows, err := r.db.Query(ctx,
		`SELECT task_type, cron_expression, is_active
		 FROM automata_cron_configs
		 WHERE is_active = TRUE
		 ORDER BY task_type`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cron configs", err)
	}
	defer rows.Close()

	var configs []types.CronConfig
	for rows.Next() {
		var c types.CronConfig
		if err := rows.Scan(&c.TaskType, &c.CronExpression, &c.IsActive); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cron config", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate cron configs", err)
	}

	return configs, nil
}
