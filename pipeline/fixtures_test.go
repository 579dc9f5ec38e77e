package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/stretchr/testify/require"
)

type userRow struct {
	UserID       int64  `parquet:"user_id"`
	FirstName    string `parquet:"first_name"`
	LastName     string `parquet:"last_name"`
	Email        string `parquet:"email"`
	Age          int32  `parquet:"age"`
	Gender       string `parquet:"gender"`
	PostCode     string `parquet:"post_code"`
	Country      string `parquet:"country"`
	JoinDate     string `parquet:"join_date"`
	FromPlatform string `parquet:"from_platform"`
}

type orderRow struct {
	OrderID      int64     `parquet:"order_id"`
	UserID       int64     `parquet:"user_id"`
	ItemID       int64     `parquet:"item_id"`
	PurchaseDate time.Time `parquet:"purchase_date"`
	PaymentType  string    `parquet:"payment_type"`
}

type interactionTypeRow struct {
	ID              int64  `parquet:"id"`
	InteractionType string `parquet:"interaction_type"`
}

func newUser(id int64, email string, age int32) userRow {
	return userRow{UserID: id, FirstName: "Ann", LastName: "Lee", Email: email, Age: age, Gender: "F",
		PostCode: "N1", Country: "UK", JoinDate: "2023-01-15", FromPlatform: "web"}
}

func newOrder(id int64, day int) orderRow {
	return orderRow{OrderID: id, UserID: 1, ItemID: 2, PurchaseDate: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC), PaymentType: "card"}
}

// writeParquetFile writes rows to dir/name, creating parent directories.
func writeParquetFile[T any](t *testing.T, dir string, name string, rows []T) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, parquet.Write(f, rows))
}

type testEnv struct {
	t        *testing.T
	base     string
	db       shared.Connector
	opener   storage.Opener
	clockNow time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := rdbms.OpenDbConnection(logger.NewNullLogger(),
		shared.DsnConnectionDetails{Dsn: "sqlite://" + filepath.Join(t.TempDir(), "warehouse.db")})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return &testEnv{
		t:        t,
		base:     t.TempDir(),
		db:       db,
		opener:   storage.NewOpener(storage.Options{}),
		clockNow: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// clock returns a clock that advances one hour per call so each run has a distinct load time.
func (e *testEnv) clock() time.Time {
	e.clockNow = e.clockNow.Add(time.Hour)
	return e.clockNow
}

func (e *testEnv) runner(cfg RunnerConfig) *Runner {
	e.t.Helper()
	cfg.Log = logger.NewNullLogger()
	cfg.Db = e.db
	cfg.Opener = e.opener
	if cfg.PipelineName == "" {
		cfg.PipelineName = "sunglass_test"
	}
	cfg.Clock = e.clock
	r, err := NewRunner(cfg)
	require.NoError(e.t, err)
	return r
}

func (e *testEnv) job(relative string, table string, strategy string, key string, cursor string) *Job {
	e.t.Helper()
	j, err := BuildJob(JobSpec{
		BaseLocation:      "file://" + filepath.ToSlash(e.base),
		RelativePath:      relative,
		FilePattern:       "**/*.parquet",
		TableName:         table,
		WriteStrategy:     strategy,
		PrimaryKey:        key,
		IncrementalColumn: cursor,
	})
	require.NoError(e.t, err)
	return j
}
