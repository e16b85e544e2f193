package prestige

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabpress/tabledger/internal/pgdb"
)

type fakeStore struct {
	stmts []pgdb.Statement
	rs    *pgdb.ResultSet
	err   error
}

func (f *fakeStore) Query(_ context.Context, stmt pgdb.Statement, _ *pgdb.Options) (*pgdb.ResultSet, error) {
	f.stmts = append(f.stmts, stmt)
	return f.rs, f.err
}

func TestByContentID(t *testing.T) {
	ownerUUID := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	store := &fakeStore{rs: &pgdb.ResultSet{
		Columns: []string{"user_id", "total_tabcoins", "initial_tabcoins"},
		Rows:    [][]any{{ownerUUID, int64(12), int64(1)}},
	}}
	g := NewSQLGateway(store)

	rec, err := g.ByContentID(context.Background(), "content-1", nil)

	require.NoError(t, err)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", rec.UserID)
	assert.Equal(t, int64(12), rec.TotalTabcoins)
	assert.Equal(t, int64(1), rec.InitialTabcoins)

	require.Len(t, store.stmts, 1)
	assert.Contains(t, store.stmts[0].SQL, "content_prestige")
	assert.Equal(t, []any{"content-1"}, store.stmts[0].Args)
}

func TestByContentIDNoRecord(t *testing.T) {
	g := NewSQLGateway(&fakeStore{rs: &pgdb.ResultSet{}})

	rec, err := g.ByContentID(context.Background(), "content-1", nil)

	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
}

func TestByContentIDStoreError(t *testing.T) {
	cause := errors.New("store down")
	g := NewSQLGateway(&fakeStore{err: cause})

	_, err := g.ByContentID(context.Background(), "content-1", nil)

	require.ErrorIs(t, err, cause)
}

func TestByUserIDColumnSelection(t *testing.T) {
	tests := []struct {
		name   string
		isRoot bool
		column string
	}{
		{name: "root earnings", isRoot: true, column: "root_earnings"},
		{name: "child earnings", isRoot: false, column: "child_earnings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{rs: &pgdb.ResultSet{
				Columns: []string{tt.column},
				Rows:    [][]any{{int64(-4)}},
			}}
			g := NewSQLGateway(store)

			earnings, err := g.ByUserID(context.Background(), "user-1", tt.isRoot, nil)

			require.NoError(t, err)
			assert.Equal(t, int64(-4), earnings)
			require.Len(t, store.stmts, 1)
			assert.Contains(t, store.stmts[0].SQL, tt.column)
			assert.Equal(t, []any{"user-1"}, store.stmts[0].Args)
		})
	}
}

func TestByUserIDNoRecord(t *testing.T) {
	g := NewSQLGateway(&fakeStore{rs: &pgdb.ResultSet{}})

	earnings, err := g.ByUserID(context.Background(), "user-1", true, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(0), earnings)
}
