package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/state"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) rows(sqlText string) []stream.Record {
	e.t.Helper()
	recs, err := rdbms.QueryRecords(context.Background(), logger.NewNullLogger(), e.db, sqlText)
	require.NoError(e.t, err)
	return recs
}

func (e *testEnv) count(table string) string {
	e.t.Helper()
	v, _, err := rdbms.QueryString(context.Background(), logger.NewNullLogger(), e.db,
		fmt.Sprintf(`select count(*) from %v`, e.db.GetDialect().QualifiedTable("raw", table)))
	require.NoError(e.t, err)
	return v
}

func TestRunLoadReplaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "types/a.parquet", []interactionTypeRow{{1, "view"}, {2, "purchase"}})
	r := env.runner(RunnerConfig{})
	jobs := []*Job{env.job("types", "interaction_types", c.WriteStrategyReplace, "", "")}
	query := `select "id", "interaction_type" from "raw__interaction_types" order by "id"`
	var first []stream.Record
	for run := 0; run < 2; run++ {
		summary, err := r.RunLoad(context.Background(), jobs, "raw")
		require.NoError(t, err)
		require.Len(t, summary.Tables, 1)
		assert.Equal(t, c.LoadStatusSucceeded, summary.Tables[0].Status)
		assert.Equal(t, int64(2), summary.Tables[0].RowsInserted)
		assert.Equal(t, int64(1), summary.Tables[0].Files)
		got := env.rows(query)
		if run == 0 {
			first = got
			continue
		}
		assert.Equal(t, len(first), len(got))
		for i := range got {
			assert.Equal(t, first[i].GetDataMap(), got[i].GetDataMap())
		}
	}
	// One _loads row per run.
	assert.Equal(t, "2", env.count(c.TableLoads))
}

func TestRunLoadAppendWithCursorSkipsLoadedRows(t *testing.T) {
	for _, backend := range []string{c.StateBackendWarehouse, c.StateBackendLocal} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t)
			var st state.Store
			if backend == c.StateBackendLocal {
				ps, err := state.NewPebbleStore(t.TempDir(), "sunglass_test")
				require.NoError(t, err)
				t.Cleanup(func() { _ = ps.Close() })
				st = ps
			}
			writeParquetFile(t, env.base, "orders/a.parquet", []orderRow{newOrder(1, 1), newOrder(2, 2)})
			r := env.runner(RunnerConfig{State: st})
			jobs := []*Job{env.job("orders", "orders", c.WriteStrategyAppend, "", "purchase_date")}

			summary, err := r.RunLoad(context.Background(), jobs, "raw")
			require.NoError(t, err)
			assert.Equal(t, int64(2), summary.Tables[0].RowsInserted)
			assert.Equal(t, "2024-01-02", summary.Tables[0].HighWaterMark)

			// Same input again: the cursor prevents re-ingestion.
			summary, err = r.RunLoad(context.Background(), jobs, "raw")
			require.NoError(t, err)
			assert.Equal(t, int64(0), summary.Tables[0].RowsInserted)
			assert.Equal(t, int64(2), summary.Tables[0].RowsSkipped)
			assert.Equal(t, "2", env.count("orders"))

			// New partition: only later rows load.
			writeParquetFile(t, env.base, "orders/b.parquet", []orderRow{newOrder(3, 2), newOrder(4, 5)})
			summary, err = r.RunLoad(context.Background(), jobs, "raw")
			require.NoError(t, err)
			assert.Equal(t, int64(1), summary.Tables[0].RowsInserted, "rows equal to the mark are not reloaded")
			assert.Equal(t, "2024-01-05", summary.Tables[0].HighWaterMark)
			assert.Equal(t, "3", env.count("orders"))
		})
	}
}

func TestRunLoadAppendWithoutCursorAddsEveryRow(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "orders/a.parquet", []orderRow{newOrder(1, 1)})
	r := env.runner(RunnerConfig{})
	jobs := []*Job{env.job("orders", "orders", c.WriteStrategyAppend, "", "")}
	for run := 0; run < 2; run++ {
		_, err := r.RunLoad(context.Background(), jobs, "raw")
		require.NoError(t, err)
	}
	assert.Equal(t, "2", env.count("orders"))
}

func TestRunLoadScd2ClosesChangedRows(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "users/a.parquet", []userRow{newUser(1, "a@x", 30), newUser(2, "b@x", 40)})
	r := env.runner(RunnerConfig{})
	jobs := []*Job{env.job("users", "users", c.WriteStrategyMergeScd2, "user_id", "")}
	summary, err := r.RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Tables[0].RowsInserted)

	// Change user 1, keep user 2, add user 3.
	writeParquetFile(t, env.base, "users/a.parquet", []userRow{newUser(1, "a@new", 30), newUser(2, "b@x", 40), newUser(3, "c@x", 50)})
	summary, err = r.RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)
	tl := summary.Tables[0]
	assert.Equal(t, int64(2), tl.RowsInserted)
	assert.Equal(t, int64(1), tl.RowsClosed)
	assert.Equal(t, int64(1), tl.RowsSkipped)

	recs := env.rows(`select "email", "valid_from", "valid_to" from "raw__users" where "user_id" = 1 order by "valid_from"`)
	require.Len(t, recs, 2, "a changed key has exactly two versions")
	assert.Equal(t, "a@x", recs[0].GetData("email"))
	assert.NotNil(t, recs[0].GetData("valid_to"), "the old version is closed")
	assert.Equal(t, recs[1].GetData("valid_from"), recs[0].GetData("valid_to"), "the new version opens when the old closes")
	assert.Equal(t, "a@new", recs[1].GetData("email"))
	assert.Nil(t, recs[1].GetData("valid_to"), "the new version is open")

	open := env.rows(`select "user_id" from "raw__users" where "valid_to" is null`)
	assert.Len(t, open, 3, "one open row per key")

	// An identical rerun changes nothing.
	summary, err = r.RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Tables[0].RowsInserted+summary.Tables[0].RowsClosed)
	assert.Equal(t, "4", env.count("users"))
}

func TestRunLoadScd2RetireAbsent(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "users/a.parquet", []userRow{newUser(1, "a@x", 30), newUser(2, "b@x", 40)})
	jobs := []*Job{env.job("users", "users", c.WriteStrategyMergeScd2, "user_id", "")}
	_, err := env.runner(RunnerConfig{}).RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)

	writeParquetFile(t, env.base, "users/a.parquet", []userRow{newUser(1, "a@x", 30)})
	summary, err := env.runner(RunnerConfig{RetireAbsent: true}).RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Tables[0].RowsClosed)
	open := env.rows(`select "user_id" from "raw__users" where "valid_to" is null`)
	require.Len(t, open, 1)
	assert.Equal(t, int64(1), open[0].GetData("user_id"))
}

func TestRunLoadUpsertUpdatesInPlace(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "types/a.parquet", []interactionTypeRow{{1, "view"}, {2, "purchase"}})
	r := env.runner(RunnerConfig{})
	jobs := []*Job{env.job("types", "interaction_types", c.WriteStrategyMergeUpsert, "id", "")}
	_, err := r.RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)

	// Duplicate keys in one extraction keep the last row.
	writeParquetFile(t, env.base, "types/a.parquet", []interactionTypeRow{{1, "seen"}, {1, "viewed"}, {3, "like"}})
	summary, err := r.RunLoad(context.Background(), jobs, "raw")
	require.NoError(t, err)
	tl := summary.Tables[0]
	assert.Equal(t, int64(1), tl.RowsUpdated)
	assert.Equal(t, int64(1), tl.RowsInserted)
	assert.Equal(t, int64(1), tl.RowsSkipped, "the duplicate row")

	recs := env.rows(`select "id", "interaction_type", "valid_to" from "raw__interaction_types" order by "id"`)
	require.Len(t, recs, 3, "rows absent from the source are kept")
	assert.Equal(t, "viewed", recs[0].GetData("interaction_type"))
	assert.Equal(t, "purchase", recs[1].GetData("interaction_type"))
	assert.Equal(t, "like", recs[2].GetData("interaction_type"))
	for _, rec := range recs {
		assert.Nil(t, rec.GetData("valid_to"))
	}
}

func TestRunLoadFailureIsolatedToTable(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "users/a.parquet", []userRow{newUser(1, "a@x", -5)})
	writeParquetFile(t, env.base, "types/a.parquet", []interactionTypeRow{{1, "view"}})
	writeParquetFile(t, env.base, "orders/a.parquet", []orderRow{newOrder(1, 1)})
	metrics := stats.NewMetrics()
	r := env.runner(RunnerConfig{Workers: 3, Metrics: metrics, Stats: stats.NewLoadStats(logger.NewNullLogger(), stats.SetStatsDumpFrequency(0))})
	jobs := []*Job{
		env.job("types", "interaction_types", c.WriteStrategyReplace, "", ""),
		env.job("users", "users", c.WriteStrategyReplace, "", ""),
		env.job("orders", "orders", c.WriteStrategyAppend, "", "purchase_date"),
		env.job("missing", "interaction", c.WriteStrategyAppend, "", ""),
	}
	summary, err := r.RunLoad(context.Background(), jobs, "raw")
	require.Error(t, err)
	var loadErr *etlerr.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "users", loadErr.Table, "the first failure in job order is reported")
	assert.Equal(t, etlerr.KindLoad, etlerr.KindOf(err))

	require.Len(t, summary.Tables, 4)
	assert.Equal(t, c.LoadStatusSucceeded, summary.Tables[0].Status)
	assert.Equal(t, c.LoadStatusFailed, summary.Tables[1].Status)
	assert.Equal(t, c.LoadStatusSucceeded, summary.Tables[2].Status)
	assert.Equal(t, c.LoadStatusFailed, summary.Tables[3].Status, "a missing source directory fails its table")
	assert.Len(t, summary.Failed(), 2)
	assert.Equal(t, "1", env.count("interaction_types"))
	assert.Equal(t, "0", env.count("users"))
	assert.Equal(t, "1", env.count("orders"))
	assert.Contains(t, summary.String(), "users")

	recs := env.rows(`select "status" from "raw___loads"`)
	require.Len(t, recs, 1)
	assert.Equal(t, c.LoadStatusFailed, recs[0].GetData("status"))
}

func TestRunLoadCancelled(t *testing.T) {
	env := newTestEnv(t)
	writeParquetFile(t, env.base, "types/a.parquet", []interactionTypeRow{{1, "view"}})
	r := env.runner(RunnerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunLoad(ctx, []*Job{env.job("types", "interaction_types", c.WriteStrategyReplace, "", "")}, "raw")
	assert.Error(t, err)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	assert.Equal(t, etlerr.KindConfiguration, etlerr.KindOf(err))
}
