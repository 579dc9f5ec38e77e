package shared

import (
	"strings"

	h "github.com/relloyd/sunglass-etl/helper"
)

// SqlUpdateGenerator generates a single-row UPDATE that sets TargetOtherCols for the row matching TargetKeyCols.
// Bind values are supplied in the order TargetOtherCols then TargetKeyCols.
type SqlUpdateGenerator struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
}

// NewUpdateGenerator creates a new SqlStmtGenerator for UPDATEs by key.
func (g *DmlGeneratorTxtBatch) NewUpdateGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtGenerator {
	FixSqlStatementGeneratorConfig(cfg)
	cfg.Log.Debug("Creating NewUpdateGenerator")
	o := &SqlUpdateGenerator{SqlStatementGeneratorConfig: *cfg}
	o.dialect = g.Dialect
	o.setupSqlStatement()
	return o
}

func (o *SqlUpdateGenerator) setupSqlStatement() {
	quote := func(cols []string) []string {
		retval := make([]string, len(cols))
		for i, c := range cols {
			retval[i] = o.dialect.QuoteIdentifier(c)
		}
		return retval
	}
	// Example:
	// update "raw"."users" set "valid_to" = $1 where "user_id" = $2 and "valid_to" is null
	setTxt := h.GenerateStringOfColsEqualsPlaceholders(quote(o.TargetOtherCols), o.dialect.Placeholder, 0, ", ")
	keyTxt := h.GenerateStringOfColsEqualsPlaceholders(quote(o.TargetKeyCols), o.dialect.Placeholder, len(o.TargetOtherCols), " and ")
	o.sqlStmtTemplate = `update <TABLE> set <COL-TXT> where <KEY-TXT>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", o.dialect.QualifiedTable(o.OutputSchema, o.OutputTable), 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<COL-TXT>", setTxt, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<KEY-TXT>", keyTxt, 1)
	if o.Predicate != "" {
		o.sqlStmtTemplate += " and " + o.Predicate
	}
	o.sqlStmt = o.sqlStmtTemplate
	o.Log.Debug("setup UPDATE generator with SQL: ", o.sqlStmt)
}

func (o *SqlUpdateGenerator) GetStatement() string {
	return o.sqlStmt
}
