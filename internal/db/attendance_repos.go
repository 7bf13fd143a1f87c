package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"automata/internal/types"
)

// collectIDSet drains a single-column id query into a set.
func collectIDSet(rows pgx.Rows) (map[int64]struct{}, error) {
	defer rows.Close()

	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// DailyAttendanceRepository provides data access for the
// automata_daily_attendance_logs table. One row per (account, date) records
// the outcome of a daily check-in attempt.
type DailyAttendanceRepository struct {
	db DBTX
}

// NewDailyAttendanceRepository creates a new DailyAttendanceRepository.
func NewDailyAttendanceRepository(db DBTX) *DailyAttendanceRepository {
	return &DailyAttendanceRepository{db: db}
}

// ListCompletedAccountIDs returns the set of account IDs that already have a
// successful check-in row for the given date (YYYY-MM-DD). The batch runner
// uses this single query to prefilter the whole account list instead of
// issuing one lookup per account.
func (r *DailyAttendanceRepository) ListCompletedAccountIDs(ctx context.Context, date string) (map[int64]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_account_id
		 FROM automata_daily_attendance_logs
		 WHERE attendance_date = $1
		   AND status IN ($2, $3)
		   AND is_deleted = FALSE`,
		date,
		int(types.OutcomeSuccess),
		int(types.OutcomeAlreadyDone),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list completed daily attendances", err)
	}

	set, err := collectIDSet(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan completed daily attendances", err)
	}
	return set, nil
}

// Insert records the outcome of one daily check-in attempt.
func (r *DailyAttendanceRepository) Insert(ctx context.Context, accountID int64, date string, outcome types.Outcome, responseMsg string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_daily_attendance_logs
		   (game_account_id, attendance_date, status, response_msg, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		accountID,
		date,
		int(outcome),
		responseMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert daily attendance log", err)
	}
	return nil
}

// WeeklyAttendanceRepository provides data access for the
// automata_weekly_attendance_logs table, keyed by ISO week identifier
// (YYYY-WW).
type WeeklyAttendanceRepository struct {
	db DBTX
}

// NewWeeklyAttendanceRepository creates a new WeeklyAttendanceRepository.
func NewWeeklyAttendanceRepository(db DBTX) *WeeklyAttendanceRepository {
	return &WeeklyAttendanceRepository{db: db}
}

// ListCompletedAccountIDs returns the set of account IDs that already have a
// successful check-in row for the given ISO week.
func (r *WeeklyAttendanceRepository) ListCompletedAccountIDs(ctx context.Context, weekIdentifier string) (map[int64]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_account_id
		 FROM automata_weekly_attendance_logs
		 WHERE week_identifier = $1
		   AND status IN ($2, $3)
		   AND is_deleted = FALSE`,
		weekIdentifier,
		int(types.OutcomeSuccess),
		int(types.OutcomeAlreadyDone),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list completed weekly attendances", err)
	}

	set, err := collectIDSet(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan completed weekly attendances", err)
	}
	return set, nil
}

// Insert records the outcome of one weekly check-in attempt.
func (r *WeeklyAttendanceRepository) Insert(ctx context.Context, accountID int64, weekIdentifier string, outcome types.Outcome, responseMsg string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_weekly_attendance_logs
		   (game_account_id, week_identifier, status, response_msg, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		accountID,
		weekIdentifier,
		int(outcome),
		responseMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert weekly attendance log", err)
	}
	return nil
}

// EventRepository provides data access for the automata_event_schedules and
// automata_event_participation_logs tables.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// UpsertSchedule mirrors an event window reported by the web shop into the
// local schedule table, keyed by the platform's event_schedule_id.
func (r *EventRepository) UpsertSchedule(ctx context.Context, s types.EventSchedule) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_event_schedules
		   (event_schedule_id, start_date, end_date, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (event_schedule_id) DO UPDATE
		   SET start_date = EXCLUDED.start_date,
		       end_date = EXCLUDED.end_date,
		       is_active = EXCLUDED.is_active,
		       updated_at = NOW()`,
		s.EventScheduleID,
		s.StartDate,
		s.EndDate,
		s.IsActive,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert event schedule", err)
	}
	return nil
}

// ListParticipatedAccountIDs returns the set of account IDs that already
// have a successful participation row for the given event schedule.
func (r *EventRepository) ListParticipatedAccountIDs(ctx context.Context, eventScheduleID int64) (map[int64]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_account_id
		 FROM automata_event_participation_logs
		 WHERE event_schedule_id = $1
		   AND participation_result IN ($2, $3)
		   AND is_deleted = FALSE`,
		eventScheduleID,
		int(types.OutcomeSuccess),
		int(types.OutcomeAlreadyDone),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list event participations", err)
	}

	set, err := collectIDSet(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event participations", err)
	}
	return set, nil
}

// InsertParticipation records the outcome of one event check-in attempt.
// taskID links the row back to the queued task that produced it.
func (r *EventRepository) InsertParticipation(ctx context.Context, accountID, eventScheduleID int64, outcome types.Outcome, responseMsg, taskID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_event_participation_logs
		   (game_account_id, event_schedule_id, participation_result,
		    response_msg, task_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		accountID,
		eventScheduleID,
		int(outcome),
		responseMsg,
		taskID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert event participation log", err)
	}
	return nil
}
