package stats

import (
	"sync"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/sunglass-etl/logger"
)

// StatsManager hands out StepWatchers and dumps their stats periodically.
type StatsManager interface {
	AddStepWatcher(stepName string) *StepWatcher
	StartDumping()
	StopDumping()
	GetStats() []Stats
}

var DefaultStatsDumpFrequencySeconds = 5

// LoadStatsManager implements StatsManager and saves stats from each pipeline step added via AddStepWatcher.
type LoadStatsManager struct {
	ticker          *time.Ticker
	tickerDone      chan struct{}
	tickerIsRunning bool
	tickerFrequency int
	mu              sync.Mutex
	log             logger.Logger
	mapStepStats    *ordered_map.OrderedMap // StepWatcher per step name, in the order they were added.
}

// SetStatsDumpFrequency returns an option for NewLoadStats. Zero disables periodic dumping.
func SetStatsDumpFrequency(seconds int) func(t *LoadStatsManager) {
	return func(t *LoadStatsManager) {
		t.tickerFrequency = seconds
	}
}

// NewLoadStats creates a new LoadStatsManager.
func NewLoadStats(log logger.Logger, options ...func(t *LoadStatsManager)) *LoadStatsManager {
	t := &LoadStatsManager{log: log, tickerFrequency: DefaultStatsDumpFrequencySeconds}
	for _, option := range options {
		option(t)
	}
	t.tickerDone = make(chan struct{})
	t.mapStepStats = ordered_map.NewOrderedMap()
	return t
}

// AddStepWatcher creates a new StepWatcher and saves it. Steps with the same name share a watcher.
func (t *LoadStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sw, ok := t.mapStepStats.Get(stepName); ok {
		return sw.(*StepWatcher)
	}
	sw := NewStepWatcher(t.log, stepName)
	t.mapStepStats.Set(stepName, sw)
	return sw
}

func (t *LoadStatsManager) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tickerIsRunning {
		t.log.Debug("stats dumper ticker already running")
		return
	}
	if t.tickerFrequency <= 0 {
		t.log.Debug("stats dumper disabled")
		return
	}
	t.ticker = time.NewTicker(time.Second * time.Duration(t.tickerFrequency))
	t.tickerIsRunning = true
	go func() {
		for {
			select {
			case <-t.tickerDone:
				return
			case <-t.ticker.C:
				t.logStats()
			}
		}
	}()
}

// StopDumping will stop the ticker and dump the current stats,
// only if the ticker was already running via a call to StartDumping().
func (t *LoadStatsManager) StopDumping() {
	t.mu.Lock()
	running := t.tickerIsRunning
	if running {
		t.tickerIsRunning = false
		t.ticker.Stop()
		t.tickerDone <- struct{}{}
	}
	t.mu.Unlock()
	if running {
		t.logStats()
	}
}

func (t *LoadStatsManager) logStats() {
	for _, s := range t.GetStats() {
		t.log.Info(s.String())
	}
}

// GetStats implements StatsManager.
func (t *LoadStatsManager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	iter := t.mapStepStats.IterFunc()
	statsList := make([]Stats, 0)
	for kv, ok := iter(); ok; kv, ok = iter() {
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
