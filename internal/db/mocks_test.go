package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"automata/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		assignMockValue(d, row[i])
	}
	return nil
}

// assignMockValue copies a stored mock value into a scan destination,
// covering the concrete types the repositories scan into.
func assignMockValue(dest, val any) {
	switch v := dest.(type) {
	case *int:
		*v = val.(int)
	case *int64:
		*v = val.(int64)
	case *string:
		*v = val.(string)
	case *bool:
		*v = val.(bool)
	case *time.Time:
		*v = val.(time.Time)
	case **string:
		if val == nil {
			*v = nil
		} else {
			s := val.(string)
			*v = &s
		}
	case **int64:
		if val == nil {
			*v = nil
		} else {
			n := val.(int64)
			*v = &n
		}
	case **time.Time:
		if val == nil {
			*v = nil
		} else {
			t := val.(time.Time)
			*v = &t
		}
	case *types.TaskType:
		*v = types.TaskType(val.(string))
	case *types.TaskStatus:
		*v = types.TaskStatus(val.(string))
	case *types.ProviderType:
		*v = types.ProviderType(val.(string))
	case *types.EmailStatus:
		*v = types.EmailStatus(val.(string))
	case *[]byte:
		if val == nil {
			*v = nil
		} else {
			*v = val.([]byte)
		}
	case *json.RawMessage:
		if val == nil {
			*v = nil
		} else {
			*v = json.RawMessage(val.([]byte))
		}
	}
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
