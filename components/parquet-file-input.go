package components

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/relloyd/sunglass-etl/stream"
)

type ParquetFileInputConfig struct {
	Log                  logger.Logger
	Name                 string
	Bucket               storage.Bucket
	InputChan            chan stream.Record // records holding the file names to read.
	InputField4FileName  string             // the map key on InputChan holding the file name. Defaults.ChanField4FileName if empty.
	OutputField4FileName string             // optional map key to copy the source file name into on every output row.
	StepWatcher          *stats.StepWatcher
	ErrorSink            *ErrorSink
	PanicHandlerFn       PanicHandlerFunc
}

// NewParquetFileInput reads every Parquet file named on cfg.InputChan and produces one record per row.
// Field names are the column paths joined by ".". Dates and timestamps are output as UTC time.Time,
// integers as int64, floats as float64 and byte arrays as string.
func NewParquetFileInput(ctx context.Context, cfg *ParquetFileInputConfig) chan stream.Record {
	if cfg.InputField4FileName == "" {
		cfg.InputField4FileName = Defaults.ChanField4FileName
	}
	outputChan := make(chan stream.Record, c.ChanSize)
	go func() {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		cfg.Log.Info(cfg.Name, " is running")
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching()
			defer cfg.StepWatcher.StopWatching()
		}
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				fileName, err := rec.GetDataAsStringUseUtcTime(cfg.InputField4FileName)
				if err != nil {
					cfg.ErrorSink.Raise(errors.Wrapf(err, "%v missing file name", cfg.Name))
					return
				}
				if err := cfg.readFile(ctx, fileName, outputChan); err != nil {
					cfg.ErrorSink.Raise(err)
					return
				}
			case <-ctx.Done():
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return outputChan
}

func (cfg *ParquetFileInputConfig) readFile(ctx context.Context, fileName string, outputChan chan stream.Record) error {
	cfg.Log.Debug(cfg.Name, " reading file ", fileName)
	data, err := cfg.Bucket.Get(ctx, fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to fetch %v from %v", fileName, cfg.Bucket)
	}
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrapf(err, "unable to open parquet file %v", fileName)
	}
	r := parquet.NewReader(f)
	defer r.Close()
	columns := newParquetColumns(r.Schema())
	rows := make([]parquet.Row, c.ParquetReadBatchSize)
	for {
		n, err := r.ReadRows(rows)
		for _, row := range rows[:n] {
			rec := stream.NewRecord()
			for _, v := range row {
				col := columns[v.Column()]
				val, err := col.convert(v)
				if err != nil {
					return errors.Wrapf(err, "file %v column %v", fileName, col.name)
				}
				rec.SetData(col.name, val)
			}
			if cfg.OutputField4FileName != "" {
				rec.SetData(cfg.OutputField4FileName, fileName)
			}
			if !safeSend(ctx, rec, outputChan) {
				return ctx.Err()
			}
			if cfg.StepWatcher != nil {
				cfg.StepWatcher.AddRows(1)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "unable to read rows from parquet file %v", fileName)
		}
	}
}

type timeUnit int

const (
	unitNone timeUnit = iota
	unitDate
	unitMillis
	unitMicros
	unitNanos
)

type parquetColumn struct {
	name string
	unit timeUnit
}

// newParquetColumns returns the leaf columns of schema indexed by column index.
func newParquetColumns(schema *parquet.Schema) []parquetColumn {
	paths := schema.Columns()
	retval := make([]parquetColumn, len(paths))
	for i, path := range paths {
		col := parquetColumn{name: strings.Join(path, ".")}
		if leaf, ok := schema.Lookup(path...); ok {
			col.unit = timeUnitOf(leaf.Node.Type().LogicalType())
		}
		retval[i] = col
	}
	return retval
}

func timeUnitOf(lt *format.LogicalType) timeUnit {
	switch {
	case lt == nil:
		return unitNone
	case lt.Date != nil:
		return unitDate
	case lt.Timestamp != nil:
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			return unitMillis
		case lt.Timestamp.Unit.Micros != nil:
			return unitMicros
		default:
			return unitNanos
		}
	}
	return unitNone
}

func (col parquetColumn) convert(v parquet.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean(), nil
	case parquet.Int32:
		if col.unit == unitDate {
			return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
		}
		return int64(v.Int32()), nil
	case parquet.Int64:
		switch col.unit {
		case unitDate:
			return time.Unix(v.Int64()*86400, 0).UTC(), nil
		case unitMillis:
			return time.UnixMilli(v.Int64()).UTC(), nil
		case unitMicros:
			return time.UnixMicro(v.Int64()).UTC(), nil
		case unitNanos:
			return time.Unix(0, v.Int64()).UTC(), nil
		}
		return v.Int64(), nil
	case parquet.Int96:
		return int96ToTime(v.Int96()), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Double:
		return v.Double(), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray()), nil
	}
	return nil, fmt.Errorf("unsupported parquet kind %v", v.Kind())
}

// int96ToTime converts the legacy Impala timestamp: nanoseconds in the day followed by the Julian day.
func int96ToTime(i deprecated.Int96) time.Time {
	const julianUnixEpoch = 2440588
	nanos := int64(i[1])<<32 | int64(i[0])
	days := int64(i[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}
