package actions

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status uint32

const (
	StatusMissing Status = iota
	StatusStarting
	StatusRunning
	StatusComplete
	StatusCompleteWithError
	StatusShutdown
)

func (s Status) MarshalJSON() ([]byte, error) {
	var retval string
	switch s {
	case StatusMissing:
		retval = ""
	case StatusStarting:
		retval = "starting"
	case StatusRunning:
		retval = "running"
	case StatusComplete:
		retval = "complete"
	case StatusCompleteWithError:
		retval = "complete with error"
	case StatusShutdown:
		retval = "shutdown by user"
	default:
		err := fmt.Errorf("unhandled Status value %v in custom MarshalJSON() conversion", s)
		return nil, err
	}
	return json.Marshal(retval)
}

type RunStatus struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    Status    `json:"runStatus"`
	Error     string    `json:"error"`
}

// RunIsFinished is false while the run is starting or running.
func (t *RunStatus) RunIsFinished() bool {
	return t.Status != StatusStarting && t.Status != StatusRunning
}
