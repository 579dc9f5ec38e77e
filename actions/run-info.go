package actions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relloyd/sunglass-etl/orchestrator"
)

// RunInfo tracks one pipeline run started by the web server.
type RunInfo struct {
	Id           string
	Steps        Steps
	Orchestrator *orchestrator.Orchestrator
	Cancel       context.CancelFunc
	Status       RunStatus
}

// SafeMapRunInfo wraps a map of RunInfo by run id with locking, via Load() and Store() methods.
type SafeMapRunInfo struct {
	sync.RWMutex
	Internal map[string]RunInfo
}

func NewSafeMapRunInfo() *SafeMapRunInfo {
	return &SafeMapRunInfo{Internal: make(map[string]RunInfo)}
}

func (t *SafeMapRunInfo) Load(key string) (ri RunInfo, ok bool) {
	t.RLock()
	ri, ok = t.Internal[key]
	t.RUnlock()
	return
}

func (t *SafeMapRunInfo) Store(key string, value RunInfo) {
	t.Lock()
	t.Internal[key] = value
	t.Unlock()
}

// Running returns the id of a run that has not finished, if any.
func (t *SafeMapRunInfo) Running() (string, bool) {
	t.RLock()
	defer t.RUnlock()
	for id, ri := range t.Internal {
		if !ri.Status.RunIsFinished() {
			return id, true
		}
	}
	return "", false
}

// Reserve stores a starting placeholder for runId unless another run has not finished.
// It returns the id of the unfinished run when the reservation is refused.
func (t *SafeMapRunInfo) Reserve(runId string, steps Steps, cancel context.CancelFunc) (activeId string, ok bool) {
	t.Lock()
	defer t.Unlock()
	for id, ri := range t.Internal {
		if !ri.Status.RunIsFinished() {
			return id, false
		}
	}
	t.Internal[runId] = RunInfo{Id: runId, Steps: steps, Cancel: cancel, Status: RunStatus{Status: StatusStarting}}
	return "", true
}

func (t *SafeMapRunInfo) Delete(key string) {
	t.Lock()
	delete(t.Internal, key)
	t.Unlock()
}

// Ids returns the run ids in start order.
func (t *SafeMapRunInfo) Ids() []string {
	t.RLock()
	defer t.RUnlock()
	ids := make([]string, 0, len(t.Internal))
	for id := range t.Internal {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := t.Internal[ids[i]].Status.StartTime, t.Internal[ids[j]].Status.StartTime
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	return ids
}

// ConsumeRunStatusChanges loops until chanStatus is closed and updates the run's status with any received.
func (t *SafeMapRunInfo) ConsumeRunStatusChanges(runId string, chanStatus chan RunStatus) {
	for status := range chanStatus {
		t.Lock()
		ri := t.Internal[runId]
		switch status.Status {
		case StatusRunning:
			ri.Status.Status = status.Status
			ri.Status.StartTime = time.Now()
		case StatusComplete, StatusShutdown:
			ri.Status.Status = status.Status
			ri.Status.EndTime = time.Now()
		case StatusCompleteWithError:
			ri.Status.Status = status.Status
			ri.Status.EndTime = time.Now()
			ri.Status.Error = status.Error
		}
		t.Internal[runId] = ri
		t.Unlock()
	}
}
