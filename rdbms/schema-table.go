package rdbms

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/relloyd/sunglass-etl/rdbms/shared"
)

var (
	reQuotedDottedName = regexp.MustCompile(`^".+\..+"$`)   // "random.table"
	reQuotedPair       = regexp.MustCompile(`^".+"\.".+"$`) // "schema"."table"
)

// SchemaTable is a table name optionally prefixed by its schema (dataset) as [<schema>.]<table>.
type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

// isQuotedTable is true when the whole name is one quoted identifier containing a dot.
func (st SchemaTable) isQuotedTable() bool {
	return reQuotedDottedName.MatchString(st.SchemaTable) && !reQuotedPair.MatchString(st.SchemaTable)
}

func (st SchemaTable) split() (schema string, table string) {
	if st.isQuotedTable() {
		return "", st.SchemaTable
	}
	i := strings.Index(st.SchemaTable, ".")
	if i < 0 { // if we have just a table...
		return "", st.SchemaTable
	}
	return st.SchemaTable[:i], st.SchemaTable[i+1:]
}

func (st SchemaTable) GetTable() string {
	_, t := st.split()
	return t
}

func (st SchemaTable) GetSchema() string {
	s, _ := st.split()
	return s
}

// Quoted renders the name for dialect d, removing any quotes supplied by the caller first.
func (st SchemaTable) Quoted(d shared.Dialect) string {
	return d.QualifiedTable(unquote(st.GetSchema()), unquote(st.GetTable()))
}

// AppendSuffix returns the name with suffix added to the table, inside any closing quote.
func (st SchemaTable) AppendSuffix(suffix string) string {
	schema, table := st.split()
	sep := "."
	if schema == "" {
		sep = ""
	}
	appendQuote := ""
	if strings.HasPrefix(table, `"`) && strings.HasSuffix(table, `"`) { // if the table is quoted...
		appendQuote = `"`
		table = strings.TrimSuffix(table, `"`)
	}
	return fmt.Sprintf("%v%v%v%v%v", schema, sep, table, suffix, appendQuote)
}

func (st SchemaTable) String() string {
	return st.SchemaTable
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
