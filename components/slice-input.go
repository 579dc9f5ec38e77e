package components

import (
	"context"

	"github.com/relloyd/sunglass-etl/stream"
)

// NewSliceInput produces the records in recs, in order, then closes the channel.
func NewSliceInput(ctx context.Context, recs []stream.Record) chan stream.Record {
	outputChan := make(chan stream.Record, len(recs))
	go func() {
		defer close(outputChan)
		for _, rec := range recs {
			if !safeSend(ctx, rec, outputChan) {
				return
			}
		}
	}()
	return outputChan
}
