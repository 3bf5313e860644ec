package db

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	rows, _ := args.Get(0).(pgx.Rows)
	return rows, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	return m.Called(ctx, sql, arguments).Get(0).(pgx.Row)
}

// mockRow returns scanErr, or delegates to scanFn when set.
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

// assign copies src values into scan destinations by reflection. Types must
// match exactly; a mismatch panics, which fails the test loudly.
func assign(dest []any, src []any) {
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if v := reflect.ValueOf(src[i]); v.IsValid() {
			target.Set(v)
		} else {
			target.SetZero()
		}
	}
}

// mockRows serves fixed rows to a pgx.Rows consumer.
type mockRows struct {
	data   [][]any
	pos    int
	closed bool
	err    error
}

func newMockRows(data [][]any) *mockRows { return &mockRows{data: data} }

func (r *mockRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	assign(dest, r.data[r.pos-1])
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
