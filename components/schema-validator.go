package components

import (
	"context"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/schema"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/stream"
)

type SchemaValidatorConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Definition     *schema.Definition
	StepWatcher    *stats.StepWatcher
	ErrorSink      *ErrorSink
	PanicHandlerFn PanicHandlerFunc
}

// NewSchemaValidator validates each input record against cfg.Definition and outputs the typed entity's record.
// The first *etlerr.SchemaViolation is raised on the ErrorSink and stops the stream.
func NewSchemaValidator(ctx context.Context, cfg *SchemaValidatorConfig) chan stream.Record {
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
				e, err := cfg.Definition.Validate(rec)
				if err != nil {
					cfg.Log.Error(cfg.Name, " ", err)
					cfg.ErrorSink.Raise(err)
					return
				}
				if !safeSend(ctx, e.Record(), outputChan) {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
				if cfg.StepWatcher != nil {
					cfg.StepWatcher.AddRows(1)
				}
			case <-ctx.Done():
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return outputChan
}
