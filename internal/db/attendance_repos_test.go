package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"automata/internal/types"
)

func TestDailyAttendanceRepository_ListCompletedAccountIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDailyAttendanceRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 3 && args[0] == "2026-09-01"
	})).Return(newMockRows([][]any{
		{int64(1)},
		{int64(3)},
	}), nil)

	done, err := repo.ListCompletedAccountIDs(ctx, "2026-09-01")
	require.NoError(t, err)
	assert.Len(t, done, 2)

	_, ok := done[int64(1)]
	assert.True(t, ok)
	_, ok = done[int64(2)]
	assert.False(t, ok)
}

func TestDailyAttendanceRepository_Insert(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDailyAttendanceRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 4 &&
			args[0] == int64(7) &&
			args[1] == "2026-09-01" &&
			args[2] == int(types.OutcomeSuccess)
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Insert(ctx, 7, "2026-09-01", types.OutcomeSuccess, "ok")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestWeeklyAttendanceRepository_ListCompletedAccountIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWeeklyAttendanceRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "week_identifier = $1")
	}), mock.MatchedBy(func(args []any) bool {
		return len(args) == 3 && args[0] == "2026-36"
	})).Return(newMockRows(nil), nil)

	done, err := repo.ListCompletedAccountIDs(ctx, "2026-36")
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestEventRepository_UpsertSchedule(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "ON CONFLICT (event_schedule_id)")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.UpsertSchedule(ctx, types.EventSchedule{
		EventScheduleID: 501,
		StartDate:       "2026-08-20",
		EndDate:         "2026-09-10",
		IsActive:        true,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestEventRepository_InsertParticipation(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 5 && args[1] == int64(501) && args[2] == int(types.OutcomeFailure)
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.InsertParticipation(ctx, 7, 501, types.OutcomeFailure, "session login failed", "task-9")
	require.NoError(t, err)
	db.AssertExpectations(t)
}
