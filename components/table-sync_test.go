package components

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
	"github.com/relloyd/sunglass-etl/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSyncTestDb(t *testing.T) shared.Connector {
	t.Helper()
	db, err := rdbms.OpenDbConnection(logger.NewNullLogger(),
		shared.DsnConnectionDetails{Dsn: "sqlite://" + filepath.Join(t.TempDir(), "sync.db")})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	cols := []shared.ColumnDef{
		{Name: "id", Kind: schema.KindInt},
		{Name: "name", Kind: schema.KindString},
		{Name: "valid_to", Kind: schema.KindTimestamp, Nullable: true},
	}
	require.NoError(t, rdbms.EnsureTable(context.Background(), logger.NewNullLogger(), db, db.GetDialect(), "raw", "t", cols))
	return db
}

func newSyncConfig(db shared.Connector, input chan stream.Record) *TableSyncConfig {
	return &TableSyncConfig{
		Log:             logger.NewNullLogger(),
		Name:            "test-table-sync",
		InputChan:       input,
		OutputDb:        db,
		Dml:             db.GetDmlGenerator(),
		Dialect:         db.GetDialect(),
		OutputSchema:    "raw",
		OutputTable:     "t",
		KeyCols:         []string{"id"},
		InsertCols:      []string{"id", "name", "valid_to"},
		UpdateCols:      []string{"name"},
		ConstantValues:  map[string]interface{}{"valid_to": nil},
		CloseColumn:     "valid_to",
		CloseValue:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		OpenPredicate:   `"valid_to" is null`,
		TxtBatchNumRows: 2,
	}
}

func TestTableSyncInsertsInBatches(t *testing.T) {
	ctx := context.Background()
	db := openSyncTestDb(t)
	input := make(chan stream.Record, 10)
	for i := 1; i <= 5; i++ {
		input <- newRec("id", int64(i), "name", "n")
	}
	close(input)
	out, counts, err := NewTableSync(ctx, newSyncConfig(db, input))
	require.NoError(t, err)
	assert.Len(t, Drain(ctx, out), 5)
	assert.Equal(t, int64(5), counts.Inserted)
	n, _, err := rdbms.QueryString(ctx, logger.NewNullLogger(), db, `select count(*) from "raw__t"`)
	require.NoError(t, err)
	assert.Equal(t, "5", n)
}

func TestTableSyncAppliesMergeDiffFlags(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNullLogger()
	db := openSyncTestDb(t)
	_, err := db.ExecContext(ctx, `insert into "raw__t" ("id","name","valid_to") values (1,'a',null),(2,'b',null),(3,'c',null)`)
	require.NoError(t, err)

	input := make(chan stream.Record, 10)
	input <- newRec("id", int64(1), "name", "a2", c.DiffStatusFieldName, c.MergeDiffValueChanged)
	input <- newRec("id", int64(2), c.DiffStatusFieldName, c.MergeDiffValueDeleted)
	input <- newRec("id", int64(3), "name", "c", c.DiffStatusFieldName, c.MergeDiffValueIdentical)
	input <- newRec("id", int64(4), "name", "d", c.DiffStatusFieldName, c.MergeDiffValueNew)
	close(input)
	cfg := newSyncConfig(db, input)
	cfg.ActionChanged = SyncActionCloseAndInsert
	cfg.ActionDeleted = SyncActionClose
	ctx, sink := NewErrorSink(ctx)
	defer sink.Close()
	cfg.ErrorSink = sink
	out, counts, err := NewTableSync(ctx, cfg)
	require.NoError(t, err)
	Drain(ctx, out)
	require.NoError(t, sink.Err())
	assert.Equal(t, TableSyncCounts{Inserted: 2, Closed: 2, Skipped: 1}, *counts)

	recs, err := rdbms.QueryRecords(ctx, log, db, `select "id", "name", "valid_to" from "raw__t" order by "id", "valid_to" desc`)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	// Key 1 has a closed row and a new open row.
	assert.Equal(t, "a", recs[0].GetData("name"))
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", recs[0].GetData("valid_to"))
	assert.Equal(t, "a2", recs[1].GetData("name"))
	assert.Nil(t, recs[1].GetData("valid_to"))
	// Key 2 was retired.
	assert.NotNil(t, recs[2].GetData("valid_to"))
	assert.Nil(t, recs[3].GetData("valid_to"))
	assert.Equal(t, int64(4), recs[4].GetData("id"))
}

func TestTableSyncUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	db := openSyncTestDb(t)
	_, err := db.ExecContext(ctx, `insert into "raw__t" ("id","name","valid_to") values (1,'a',null)`)
	require.NoError(t, err)
	input := make(chan stream.Record, 1)
	input <- newRec("id", int64(1), "name", "z", c.DiffStatusFieldName, c.MergeDiffValueChanged)
	close(input)
	cfg := newSyncConfig(db, input)
	cfg.ActionChanged = SyncActionUpdate
	out, counts, err := NewTableSync(ctx, cfg)
	require.NoError(t, err)
	Drain(ctx, out)
	assert.Equal(t, int64(1), counts.Updated)
	v, _, err := rdbms.QueryString(ctx, logger.NewNullLogger(), db, `select "name" from "raw__t" where "id" = 1`)
	require.NoError(t, err)
	assert.Equal(t, "z", v)
}

func TestTableSyncValidatesConfig(t *testing.T) {
	db := openSyncTestDb(t)
	cfg := newSyncConfig(db, make(chan stream.Record))
	cfg.KeyCols = nil
	cfg.ActionChanged = SyncActionUpdate
	_, _, err := NewTableSync(context.Background(), cfg)
	assert.Error(t, err)
}
