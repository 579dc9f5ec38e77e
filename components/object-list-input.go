package components

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/relloyd/sunglass-etl/stream"
)

type ObjectListInputConfig struct {
	Log                    logger.Logger
	Name                   string
	Bucket                 storage.Bucket
	Glob                   string // doublestar pattern matched against keys relative to the bucket root, e.g. **/*.parquet
	OutputField4FileName   string // the map key on outputChan that contains the file names found. Defaults.ChanField4FileName if empty.
	OutputField4BucketName string // the map key on outputChan that contains the bucket description. Defaults.ChanField4BucketName if empty.
	StepWatcher            *stats.StepWatcher
	ErrorSink              *ErrorSink
	PanicHandlerFn         PanicHandlerFunc
}

// NewObjectListInput lists the objects in cfg.Bucket and produces one record per key matching cfg.Glob, in key order.
// Each record has:
// map key name = OutputField4FileName
// map value = the object key relative to the bucket root
func NewObjectListInput(ctx context.Context, cfg *ObjectListInputConfig) (outputChan chan stream.Record, err error) {
	if cfg.Bucket == nil {
		return nil, fmt.Errorf("%v error - missing bucket", cfg.Name)
	}
	if !doublestar.ValidatePattern(cfg.Glob) {
		return nil, fmt.Errorf("%v error - invalid file pattern %q", cfg.Name, cfg.Glob)
	}
	if cfg.OutputField4FileName == "" {
		cfg.OutputField4FileName = Defaults.ChanField4FileName
	}
	if cfg.OutputField4BucketName == "" {
		cfg.OutputField4BucketName = Defaults.ChanField4BucketName
	}
	outputChan = make(chan stream.Record, int(c.ChanSize))
	go func() {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		cfg.Log.Info(cfg.Name, " is running for bucket '", cfg.Bucket, "' pattern '", cfg.Glob, "'")
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching()
			defer cfg.StepWatcher.StopWatching()
		}
		keys, err := cfg.Bucket.List(ctx)
		if err != nil {
			if cfg.ErrorSink != nil {
				cfg.ErrorSink.Raise(fmt.Errorf("unable to list %v: %w", cfg.Bucket, err))
			}
			return
		}
		matched := 0
		for _, v := range keys {
			ok, err := doublestar.Match(cfg.Glob, v)
			if err != nil { // only returned for a bad pattern, which is validated above.
				if cfg.ErrorSink != nil {
					cfg.ErrorSink.Raise(err)
				}
				return
			}
			if !ok {
				cfg.Log.Trace(cfg.Name, " no match for file - skipped: ", v)
				continue
			}
			cfg.Log.Debug(cfg.Name, " - producing record for file '", v, "' onto output channel")
			rec := stream.NewRecord()
			rec.SetData(cfg.OutputField4FileName, v)
			rec.SetData(cfg.OutputField4BucketName, cfg.Bucket.String())
			if !safeSend(ctx, rec, outputChan) {
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
			matched++
			if cfg.StepWatcher != nil {
				cfg.StepWatcher.AddRows(1)
			}
		}
		if matched == 0 {
			cfg.Log.Warn(cfg.Name, " found no files matching '", cfg.Glob, "' in ", cfg.Bucket)
		}
		cfg.Log.Info(cfg.Name, " complete")
	}()
	return outputChan, nil
}
