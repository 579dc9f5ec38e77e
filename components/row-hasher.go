package components

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stream"
)

type RowHasherConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	HashFields     []string // fields to hash, in order.
	OutputField    string   // Defaults.ChanField4RowHash if empty.
	PanicHandlerFn PanicHandlerFunc
}

// NewRowHasher adds a hash of cfg.HashFields to every record passing through.
func NewRowHasher(ctx context.Context, cfg *RowHasherConfig) chan stream.Record {
	if cfg.OutputField == "" {
		cfg.OutputField = Defaults.ChanField4RowHash
	}
	outputChan := make(chan stream.Record, c.ChanSize)
	go func() {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		cfg.Log.Info(cfg.Name, " is running")
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				rec.SetData(cfg.OutputField, HashRecord(rec, cfg.HashFields))
				if !safeSend(ctx, rec, outputChan) {
					cfg.Log.Info(cfg.Name, " shutdown")
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

// HashRecord returns the hex xxhash of the named fields. Nil and empty string values hash differently.
func HashRecord(rec stream.Record, fields []string) string {
	d := xxhash.New()
	for _, f := range fields {
		v, _ := rec.GetDataOk(f)
		if v == nil {
			_, _ = d.WriteString("\x00")
		} else {
			_, _ = d.WriteString("\x01")
			_, _ = d.WriteString(helper.MustGetStringFromInterface(v))
		}
		_, _ = d.WriteString("\x1f")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
