package components

import (
	"context"
	"fmt"
	"sync"

	"github.com/relloyd/sunglass-etl/stream"
)

// safeSend sends rec to outputChan unless ctx is cancelled first.
func safeSend(ctx context.Context, rec stream.Record, outputChan chan stream.Record) (recordSentOK bool) {
	select {
	case outputChan <- rec: // if we can send the record to the outputChan...
		return true // signal that data was sent OK.
	case <-ctx.Done(): // if we were asked to shutdown...
		return false // signal that the caller should shutdown.
	}
}

// ErrorSink collects the first error raised by any component in a pipeline and cancels the others.
type ErrorSink struct {
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

// NewErrorSink returns a context that is cancelled when the first error is raised.
func NewErrorSink(ctx context.Context) (context.Context, *ErrorSink) {
	ctx, cancel := context.WithCancel(ctx)
	return ctx, &ErrorSink{cancel: cancel}
}

// Raise saves err if it is the first and cancels the pipeline.
func (e *ErrorSink) Raise(err error) {
	if e == nil || err == nil {
		return
	}
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.cancel()
}

// Err returns the first error raised, if any.
func (e *ErrorSink) Err() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close releases the context. Call it once the pipeline is drained.
func (e *ErrorSink) Close() {
	e.cancel()
}

// PanicHandler returns a func for components to defer, which turns a panic into an error on the sink.
func (e *ErrorSink) PanicHandler(name string) PanicHandlerFunc {
	return func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				e.Raise(fmt.Errorf("%v panic: %w", name, err))
				return
			}
			e.Raise(fmt.Errorf("%v panic: %v", name, r))
		}
	}
}

// Drain reads every record from ch into a slice, stopping early if ctx is cancelled.
func Drain(ctx context.Context, ch chan stream.Record) []stream.Record {
	retval := make([]stream.Record, 0)
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return retval
			}
			retval = append(retval, rec)
		case <-ctx.Done():
			return retval
		}
	}
}
