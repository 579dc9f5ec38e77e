package components

import (
	"context"

	om "github.com/cevaris/ordered_map"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	s "github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/stream"
)

type MergeDiffConfig struct {
	Log                 logger.Logger
	Name                string
	ChanOld             chan stream.Record
	ChanNew             chan stream.Record
	JoinKeys            *om.OrderedMap
	CompareKeys         *om.OrderedMap
	ResultFlagKeyName   string
	OutputIdenticalRows bool
	StepWatcher         *s.StepWatcher
	PanicHandlerFn      PanicHandlerFunc
}

// NewMergeDiff produces an output channel of records based on the data found in ChanOld and ChanNew.
// A new field is added to each output record (named by ResultFlagKeyName) to show the
// merge-diff result as follows:
//
//	N == new record found on ChanNew that is not on ChanOld (output contains the row from ChanNew so you can INSERT)
//	C == changes found to the record on ChanOld compared to ChanNew (output contains the row from ChanNew so you can UPDATE)
//	D == record not found on ChanNew (output contains the row from ChanOld so you have the key required to DELETE)
//	I == records are identical for CompareKeys columns (output contains the row from ChanNew)
//
// NOTE that input channel records MUST be pre-sorted by the join keys using stream.CompareValues.
// NOTE that the output channel is closed by this function when it is done or ctx is cancelled.
//
// JoinKeys maps the fields in ChanOld to ChanNew that join the records.
// CompareKeys maps the fields that are compared once the join keys match.
// Ordered maps are used as the comparison exits early when inequality is found, so put the most volatile
// columns first.
func NewMergeDiff(ctx context.Context, cfg *MergeDiffConfig) chan stream.Record {
	cfg.Log.Debug(cfg.Name, " starting...")
	outputChan := make(chan stream.Record, c.ChanSize)
	resultKeyName := Defaults.ChanField4MergeDiff
	if cfg.ResultFlagKeyName != "" {
		resultKeyName = cfg.ResultFlagKeyName
	}
	go func(log logger.Logger,
		chanOld chan stream.Record,
		chanNew chan stream.Record,
		joinKeys *om.OrderedMap,
		compareKeys *om.OrderedMap) {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		log.Info(cfg.Name, " is running")
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching()
			defer cfg.StepWatcher.StopWatching()
		}
		var (
			recOld stream.Record
			recNew stream.Record
			okOld  bool
			okNew  bool
		)
		getNextRecord := func(rec *stream.Record, ok *bool, c chan stream.Record) bool {
			select { // fetch the (old or new) record...
			case *rec, *ok = <-c:
			case <-ctx.Done():
				log.Info(cfg.Name, " shutdown")
				return false
			}
			return true // we have input data so signal continue.
		}
		send := func(rec stream.Record, flag string) bool {
			rec.SetData(resultKeyName, flag)
			if !safeSend(ctx, rec, outputChan) {
				log.Info(cfg.Name, " shutdown")
				return false
			}
			return true
		}
		if !getNextRecord(&recOld, &okOld, chanOld) {
			return
		}
		if !getNextRecord(&recNew, &okNew, chanNew) {
			return
		}
		log.Debug(cfg.Name, " first channel records fetched.")
		for okOld || okNew { // while either new/old channel still has records...
			if cfg.StepWatcher != nil {
				cfg.StepWatcher.AddRows(1)
			}
			if !okOld && okNew { // if we have a NEW record...
				if !send(recNew, c.MergeDiffValueNew) {
					return
				}
				if !getNextRecord(&recNew, &okNew, chanNew) {
					return
				}
			} else if okOld && !okNew { // if we have a DELETED record...
				if !send(recOld, c.MergeDiffValueDeleted) {
					return
				}
				if !getNextRecord(&recOld, &okOld, chanOld) {
					return
				}
			} else { // else we have good records on both channels...
				comparison := recOld.DataCanJoinByKeyFields(log, recNew, joinKeys)
				switch {
				case comparison == 0: // if the records join...
					if recOld.DataIsDeepEqual(log, recNew, compareKeys) { // if records are IDENTICAL...
						if cfg.OutputIdenticalRows && !send(recNew, c.MergeDiffValueIdentical) {
							return
						}
					} else if !send(recNew, c.MergeDiffValueChanged) {
						return
					}
					if !getNextRecord(&recOld, &okOld, chanOld) {
						return
					}
					if !getNextRecord(&recNew, &okNew, chanNew) {
						return
					}
				case comparison < 0: // if recOld is DELETED...
					if !send(recOld, c.MergeDiffValueDeleted) {
						return
					}
					if !getNextRecord(&recOld, &okOld, chanOld) {
						return
					}
				default: // else recNew is NEW...
					if !send(recNew, c.MergeDiffValueNew) {
						return
					}
					if !getNextRecord(&recNew, &okNew, chanNew) {
						return
					}
				}
			}
		}
		log.Info(cfg.Name, " complete")
	}(cfg.Log, cfg.ChanOld, cfg.ChanNew, cfg.JoinKeys, cfg.CompareKeys)
	cfg.Log.Debug(cfg.Name, " launched goroutine...")
	return outputChan
}
