package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = Key{Pipeline: "sunglass", Table: "orders", Column: "purchase_date"}

// exerciseStore checks the common Store contract.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	_, found, err := st.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, found, "no mark before the first load")

	require.NoError(t, st.Set(ctx, testKey, "2024-01-01"))
	require.NoError(t, st.Set(ctx, testKey, "2024-02-01"))
	m, found, err := st.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-02-01", m.Value)

	other := testKey
	other.Column = "order_id"
	_, found, err = st.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, found, "marks are keyed by cursor column")
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestPebbleStore(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir, "sunglass")
	require.NoError(t, err)
	exerciseStore(t, st)
	var keys []Key
	require.NoError(t, st.Range(func(k Key, m Mark) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []Key{testKey}, keys)
	require.NoError(t, st.Close())

	// Marks survive a reopen.
	st, err = NewPebbleStore(dir, "sunglass")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m, found, err := st.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-02-01", m.Value)
}

func openWarehouse(t *testing.T) shared.Connector {
	t.Helper()
	db, err := rdbms.OpenDbConnection(logger.NewNullLogger(),
		shared.DsnConnectionDetails{Dsn: "sqlite://" + filepath.Join(t.TempDir(), "w.db")})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestWarehouseStore(t *testing.T) {
	db := openWarehouse(t)
	st := NewWarehouseStore(logger.NewNullLogger(), db, "raw")
	require.NoError(t, st.Ensure(context.Background()))
	exerciseStore(t, st)
}

func TestWarehouseStoreRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := openWarehouse(t)
	st := NewWarehouseStore(logger.NewNullLogger(), db, "raw")
	require.NoError(t, st.Ensure(ctx))
	require.NoError(t, st.Set(ctx, testKey, "2024-01-01"))

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, st.InTx(tx).Set(ctx, testKey, "2024-05-01"))
	require.NoError(t, tx.Rollback())

	m, found, err := st.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-01-01", m.Value, "mark must not advance when the load rolls back")
}
