package shared

import (
	"github.com/relloyd/sunglass-etl/logger"
)

// DefaultBatchSize is the most rows sent in one multi-row INSERT.
const DefaultBatchSize = 500

type DmlGeneratorTxtBatch struct {
	Dialect Dialect
}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	OutputTable     string
	TargetKeyCols   []string // key columns, used in the WHERE clause of updates.
	TargetOtherCols []string // other columns, set by updates.
	Predicate       string   // optional extra predicate ANDed to update WHERE clauses, e.g. valid_to is null.
}

type sqlCoreCfg struct {
	dialect                Dialect
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// BatchSizeFor returns the largest batch of rows with numCols columns that fits the dialect's bind variable limit.
func BatchSizeFor(d Dialect, numCols int) int {
	if numCols <= 0 {
		return DefaultBatchSize
	}
	n := d.MaxBindVariables() / numCols
	if n > DefaultBatchSize {
		n = DefaultBatchSize
	}
	if n < 1 {
		n = 1
	}
	return n
}
