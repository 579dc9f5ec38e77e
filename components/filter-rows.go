package components

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	c "github.com/relloyd/sunglass-etl/constants"
	log "github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/stream"
)

type FilterType string
type FilterMetadata string

type mapFilterFuncs map[FilterType]filterSetupFunc
type filterSetupFunc func(log log.Logger, cfg *FilterRowsConfig) (filterFunc, error)
type filterFunc func(data stream.Record) (stream.Record, error)

const (
	FilterRowsGetMax      FilterType = "GetMax"
	FilterRowsJsonLogic   FilterType = "JsonLogic"
	FilterRowsGreaterThan FilterType = "GreaterThan"
)

var filterTypes = mapFilterFuncs{
	FilterRowsGetMax:      setupFilterGetMax,      // FilterMetadata is the field name to find the maximum value of. The max record is output when the input closes.
	FilterRowsJsonLogic:   setupJsonLogicFilter,   // FilterMetadata is the JSON Logic rule.
	FilterRowsGreaterThan: setupGreaterThanFilter, // FilterMetadata is the field name and FilterValue the exclusive lower bound.
}

type FilterRowsConfig struct {
	Log            log.Logger
	Name           string
	InputChan      chan stream.Record
	FilterType     FilterType     // one of the keys in the filterTypes map.
	FilterMetadata FilterMetadata // the field name or rule the filter operates with.
	FilterValue    interface{}    // optional value used by FilterRowsGreaterThan. Nil passes every row.
	StepWatcher    *stats.StepWatcher
	ErrorSink      *ErrorSink
	PanicHandlerFn PanicHandlerFunc
}

// ValidateFilter returns an error if the filter type is unknown or its metadata is unusable.
func ValidateFilter(filterType FilterType, metadata FilterMetadata) error {
	fnGetFilter, ok := filterTypes[filterType]
	if !ok {
		return fmt.Errorf("unable to find filter function using name %v", filterType)
	}
	_, err := fnGetFilter(log.NewNullLogger(), &FilterRowsConfig{FilterType: filterType, FilterMetadata: metadata})
	return err
}

// NewFilterRows accepts a FilterRowsConfig{} and outputs rows if they match the given filter.
// Filter errors are raised on the ErrorSink, which stops the pipeline.
func NewFilterRows(ctx context.Context, cfg *FilterRowsConfig) (outputChan chan stream.Record, err error) {
	fnGetFilter, ok := filterTypes[cfg.FilterType]
	if !ok {
		return nil, fmt.Errorf("unable to find filter function using name %v", cfg.FilterType)
	}
	// Set up the filter by supplying the metadata.
	fnFilter, err := fnGetFilter(cfg.Log, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to setup filter %v: %w", cfg.FilterType, err)
	}
	outputChan = make(chan stream.Record, c.ChanSize)
	go func() {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching()
			defer cfg.StepWatcher.StopWatching()
		}
		cfg.Log.Info(cfg.Name, " is running")
		rowCount := 0
		// Function to call the filter and output data if needed.
		fnFilterAndSend := func(rec stream.Record) bool {
			data, err := fnFilter(rec)
			if err != nil {
				cfg.Log.Error(cfg.Name, " aborting due to error: ", err)
				if cfg.ErrorSink != nil {
					cfg.ErrorSink.Raise(fmt.Errorf("%v: %w", cfg.Name, err))
				}
				return false
			}
			if !data.RecordIsNil() { // if the filter returned a record...
				return safeSend(ctx, data, outputChan)
			}
			return true
		}
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					if rowCount > 0 { // if we did any filtering...
						fnFilterAndSend(stream.NewNilRecord()) // send nil data to the filter as it may want to output a record.
					}
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				rowCount++
				if cfg.StepWatcher != nil {
					cfg.StepWatcher.AddRows(1)
				}
				if !fnFilterAndSend(rec) {
					return
				}
			case <-ctx.Done(): // if we were asked to shutdown...
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return outputChan, nil
}

// setupFilterGetMax returns a filterFunc that can find and remember the record with the maximum value of a
// given field. The field name is expected to be supplied in the FilterMetadata.
// The filterFunc returns the record with max value when it is supplied a nil stream.Record.
func setupFilterGetMax(log log.Logger, cfg *FilterRowsConfig) (filterFunc, error) {
	field := string(cfg.FilterMetadata)
	if field == "" {
		return nil, fmt.Errorf("missing field name for filter %v", FilterRowsGetMax)
	}
	var maxRec stream.Record
	found := false
	return func(data stream.Record) (stream.Record, error) {
		if !data.RecordIsNil() { // if we have been given an input record to check a max value...
			v, _ := data.GetDataOk(field)
			if v == nil {
				return stream.NewNilRecord(), nil
			}
			if !found || stream.CompareValues(v, maxRec.GetData(field)) > 0 { // if we have a new maximum value...
				maxRec = stream.NewRecord()
				data.CopyTo(maxRec)
				found = true
			}
			return stream.NewNilRecord(), nil
		}
		if !found {
			return stream.NewNilRecord(), nil
		}
		log.Trace("setupFilterGetMax found max record: ", maxRec.GetDataMap())
		return maxRec, nil
	}, nil
}

// setupJsonLogicFilter returns a filterFunc, which can be used to filter records using JSON Logic.
// Supply the JSON Logic rule as metadata input parameter.
// The filterFunc returns the data if the rule returns true, else it returns a nil record.
// In order to apply the JSON Logic, the filterFunc marshals the supplied data to JSON.
func setupJsonLogicFilter(log log.Logger, cfg *FilterRowsConfig) (filterFunc, error) {
	var result bytes.Buffer
	rule := string(cfg.FilterMetadata)
	if !jsonlogic.IsValid(strings.NewReader(rule)) {
		return nil, fmt.Errorf("invalid %v rule: %v", FilterRowsJsonLogic, rule)
	}
	return func(data stream.Record) (stream.Record, error) {
		if !data.RecordIsNil() {
			result.Reset()
			if err := applyJsonLogic(data, rule, &result); err != nil {
				return stream.NewNilRecord(), err
			}
			if strings.TrimSpace(result.String()) == "true" {
				return data, nil
			}
		}
		return stream.NewNilRecord(), nil // return nil if data is nil.
	}, nil
}

// setupGreaterThanFilter returns a filterFunc that passes records whose field named in FilterMetadata
// is strictly greater than FilterValue. Records with a nil field value are dropped.
func setupGreaterThanFilter(log log.Logger, cfg *FilterRowsConfig) (filterFunc, error) {
	field := string(cfg.FilterMetadata)
	if field == "" {
		return nil, fmt.Errorf("missing field name for filter %v", FilterRowsGreaterThan)
	}
	bound := cfg.FilterValue
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			return stream.NewNilRecord(), nil
		}
		v, _ := data.GetDataOk(field)
		if v == nil {
			return stream.NewNilRecord(), nil
		}
		if bound == nil || stream.CompareValues(v, bound) > 0 {
			return data, nil
		}
		return stream.NewNilRecord(), nil
	}, nil
}

func applyJsonLogic(data stream.Record, rule string, result *bytes.Buffer) error {
	// Convert input data to json.
	jsonData, err := json.Marshal(data.GetDataMap())
	if err != nil {
		return fmt.Errorf("error marshalling data before applying JSON logic: %w", err)
	}
	// Apply logic, returned via reference.
	err = jsonlogic.Apply(strings.NewReader(rule), bytes.NewReader(jsonData), result)
	if err != nil {
		return fmt.Errorf("error applying JSON logic: %w", err)
	}
	return nil
}
