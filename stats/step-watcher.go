package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
)

// StepWatcher saves stats for a given pipeline step periodically.
// The step calls StartWatching(), AddRows() per record and StopWatching() when done.
type StepWatcher struct {
	log             logger.Logger
	stepName        string
	rowCount        int64
	rowsPerSecDelta int64
	rowsPerSecAvg   int64
	priorRowCount   int64
	mu              sync.Mutex
	startTime       time.Time
	priorTime       time.Time // allows us to calculate delta rows per sec between ticker timeouts.
	ticker          *time.Ticker
	tickerDone      chan struct{}
	isRunning       atomic.Bool
}

type Stats struct {
	StepName           string `json:"stepName"`
	StatusText         string `json:"statusText"`
	StatusEmoji        string `json:"statusEmoji"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
	RowsPerSecondDelta int    `json:"rowsPerSecondDelta"`
}

func NewStepWatcher(log logger.Logger, stepName string) *StepWatcher {
	return &StepWatcher{log: log, stepName: stepName, tickerDone: make(chan struct{})}
}

func (n *StepWatcher) StartWatching() {
	n.mu.Lock()
	n.startTime = time.Now()
	n.priorTime = n.startTime
	n.mu.Unlock()
	atomic.StoreInt64(&n.rowCount, 0)
	atomic.StoreInt64(&n.priorRowCount, 0)
	n.isRunning.Store(true)
	n.ticker = time.NewTicker(time.Second * c.StatsCaptureFrequencySeconds)
	go func() {
		for {
			select {
			case <-n.ticker.C:
				n.CalculateStats()
			case <-n.tickerDone:
				return
			}
		}
	}()
}

// AddRows increments the row count bearing in mind someone else is reporting on its value.
func (n *StepWatcher) AddRows(delta int64) {
	atomic.AddInt64(&n.rowCount, delta)
}

func (n *StepWatcher) StopWatching() {
	if !n.isRunning.Load() {
		return
	}
	n.ticker.Stop()
	n.tickerDone <- struct{}{} // stop the goroutine that calculates stats.
	n.CalculateStats()         // force final stats calculation.
	n.isRunning.Store(false)
}

func (n *StepWatcher) CalculateStats() {
	n.mu.Lock()
	defer n.mu.Unlock()
	deltaTime := int64(time.Since(n.priorTime).Seconds())
	if deltaTime < 1 {
		deltaTime = 1
	}
	rowCount := atomic.LoadInt64(&n.rowCount)
	deltaRowCount := rowCount - atomic.LoadInt64(&n.priorRowCount)
	atomic.StoreInt64(&n.rowsPerSecDelta, deltaRowCount/deltaTime)
	n.log.Debug("STATS: ", n.stepName, " processing ", deltaRowCount/deltaTime, " rows per sec")
	atomic.StoreInt64(&n.priorRowCount, rowCount)
	n.priorTime = time.Now()
	atomic.StoreInt64(&n.rowsPerSecAvg, rowCount/getNumSecondsSinceTimeOrOne(n.startTime))
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *StepWatcher) RenderStats() Stats {
	var statusText, statusEmoji string
	if n.isRunning.Load() {
		statusText = "running"
		statusEmoji = "\U0000231B" // hour glass
	} else {
		statusText = "complete"
		statusEmoji = "\U00002705" // green tick
	}
	n.mu.Lock()
	elapsed := int(time.Since(n.startTime).Seconds())
	n.mu.Unlock()
	return Stats{
		StepName:           n.stepName,
		StatusText:         statusText,
		StatusEmoji:        statusEmoji,
		ElapsedTimeSec:     elapsed,
		TotalRowsProcessed: int(atomic.LoadInt64(&n.rowCount)),
		RowsPerSecondAvg:   int(atomic.LoadInt64(&n.rowsPerSecAvg)),
		RowsPerSecondDelta: int(atomic.LoadInt64(&n.rowsPerSecDelta)),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"totalRowsProcessed=%v "+
			"rowsPerSecondAvg=%v "+
			"rowsPerSecondDelta=%v",
		s.StepName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeSec,
		s.TotalRowsProcessed,
		s.RowsPerSecondAvg,
		s.RowsPerSecondDelta,
	)
}

func getNumSecondsSinceTimeOrOne(t time.Time) (seconds int64) {
	seconds = int64(time.Since(t).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
