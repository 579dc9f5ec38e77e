package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/stream"
)

// SqlQuery runs sqltext and sends the header and each row to i.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Execer, sqltext string, i shared.SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	// Set up column types for Scan(...)
	log.Trace("fetching column types...")
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("error fetching column types: %w", err)
	}
	// Scan the values dynamically.
	lenColTypes := len(colTypes)
	scanPtrs := make([]interface{}, lenColTypes)
	scanVals := make([]interface{}, lenColTypes)
	for idx := 0; idx < lenColTypes; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx] // save the value.
	}
	// Build and send the header.
	header := make([]interface{}, lenColTypes)
	for idx := range colTypes {
		header[idx] = colTypes[idx].Name()
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err = ctx.Err(); err != nil { // quit if asked to...
			return err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenColTypes)
		for idx := range scanVals { // for each value...
			row[idx] = scanVals[idx]
		}
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// recordCollector is a SqlResultHandler that builds stream records keyed by column name.
type recordCollector struct {
	header  []string
	records []stream.Record
}

func (r *recordCollector) HandleHeader(i []interface{}) error {
	r.header = make([]string, len(i))
	for idx, v := range i {
		r.header[idx] = fmt.Sprint(v)
	}
	return nil
}

func (r *recordCollector) HandleRow(i []interface{}) error {
	rec := stream.NewRecord()
	for idx, v := range i {
		if b, ok := v.([]byte); ok { // if the driver returned raw bytes...
			v = string(b)
		}
		rec.SetData(r.header[idx], v)
	}
	r.records = append(r.records, rec)
	return nil
}

// QueryRecords runs sqltext and returns every row as a record. Byte slices are converted to strings.
func QueryRecords(ctx context.Context, log logger.Logger, db shared.Execer, sqltext string, args ...interface{}) ([]stream.Record, error) {
	c := &recordCollector{records: make([]stream.Record, 0)}
	if err := SqlQuery(ctx, log, db, sqltext, c, args...); err != nil {
		return nil, err
	}
	return c.records, nil
}

// QueryString returns the first column of the first row of sqltext as a string.
// found is false when there are no rows. A NULL value returns "" and found true.
func QueryString(ctx context.Context, log logger.Logger, db shared.Execer, sqltext string, args ...interface{}) (value string, found bool, err error) {
	c := &recordCollector{records: make([]stream.Record, 0)}
	if err = SqlQuery(ctx, log, db, sqltext, c, args...); err != nil {
		return "", false, err
	}
	if len(c.records) == 0 || len(c.header) == 0 {
		return "", false, nil
	}
	v := c.records[0].GetData(c.header[0])
	if v == nil {
		return "", true, nil
	}
	return fmt.Sprint(v), true, nil
}
