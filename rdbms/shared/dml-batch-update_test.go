package shared

import (
	"testing"

	"github.com/relloyd/sunglass-etl/logger"
)

func TestSqlUpdate(t *testing.T) {
	dml := &DmlGeneratorTxtBatch{Dialect: testDialect{}}
	o := dml.NewUpdateGenerator(&SqlStatementGeneratorConfig{
		Log:             logger.NewNullLogger(),
		OutputSchema:    "raw",
		OutputTable:     "users",
		TargetKeyCols:   []string{"user_id"},
		TargetOtherCols: []string{"valid_to"},
		Predicate:       `"valid_to" is null`,
	})
	expected := `update "raw"."users" set "valid_to" = $1 where "user_id" = $2 and "valid_to" is null`
	if got := o.GetStatement(); got != expected {
		t.Fatalf("unexpected SQL:\n got: %v\nwant: %v", got, expected)
	}
}
