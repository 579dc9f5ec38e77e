package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SqlInsertTxtBatch implements interface SqlStmtTxtBatcher
// and is able to generate multi-row INSERT statements with batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
}

// NewInsertGenerator creates a new SqlStmtTxtBatcher for multi-row INSERTs.
// Column order is TargetKeyCols followed by TargetOtherCols.
func (g *DmlGeneratorTxtBatch) NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	FixSqlStatementGeneratorConfig(cfg)
	cfg.Log.Debug("Creating NewInsertGenerator")
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.dialect = g.Dialect
	o.setupSqlStatement()
	return o
}

func (o *SqlInsertTxtBatch) setupSqlStatement() {
	o.ColList = make([]string, 0, len(o.TargetKeyCols)+len(o.TargetOtherCols))
	o.ColList = append(o.ColList, o.TargetKeyCols...)
	o.ColList = append(o.ColList, o.TargetOtherCols...)
	quoted := make([]string, len(o.ColList))
	for i, col := range o.ColList {
		quoted[i] = o.dialect.QuoteIdentifier(col)
	}
	// Populate the SQL template.
	o.sqlStmtTemplate = `insert into <TABLE> (<TGT-COLS>) values <VALUES>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", o.dialect.QualifiedTable(o.OutputSchema, o.OutputTable), 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TGT-COLS>", strings.Join(quoted, ","), 1)
	o.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	// Allocate a new buffer to hold all values (args) to exec.
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.ColList)) // many values per row in a batch.
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		err = errors.New("no more rows allowed in INSERT batch")
		batchIsFull = true
		return
	}
	if len(values) != len(o.ColList) {
		err = errors.New("the number of values supplied does not match the number of table columns")
		return
	}
	// Append values to buffer.
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++ // keep track of how close we are to the batch limit.
	batchIsFull = o.rowsInBatch >= o.batchSize
	return
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlInsertTxtBatch) GetRowCount() int {
	return o.rowsInBatch
}

// GetStatement returns the INSERT for the rows added since InitBatch.
// The SQL is cached while the number of rows in consecutive batches stays the same.
func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.sqlStmt == "" || o.previousNumRowsInBatch != o.rowsInBatch { // if we have a new batch size and need to generate SQL...
		allRows := strings.Builder{}
		valIdx := 1
		for rowIdx := 0; rowIdx < o.rowsInBatch; rowIdx++ { // for each row...
			// Build the current row of bind variables.
			row := make([]string, len(o.ColList))
			for idy := range o.ColList {
				row[idy] = o.dialect.Placeholder(valIdx)
				valIdx++
			}
			if rowIdx > 0 {
				allRows.WriteString(",")
			}
			allRows.WriteString(fmt.Sprintf("(%v)", strings.Join(row, ",")))
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", allRows.String(), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	} // else we have the same batch size and can use cached SQL...
	o.Log.Trace("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
