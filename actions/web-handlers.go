package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/orchestrator"
	"github.com/rs/xid"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseRunList struct {
	Status  WebServerResponse `json:"status"`
	RunList []RunListItem     `json:"runs"`
}

type RunListItem struct {
	RunId     string `json:"runId"`
	RunStatus Status `json:"runStatus"`
}

type ResponseRunStatus struct {
	Status    WebServerResponse    `json:"status"`
	Message   string               `json:"message"`
	RunStatus RunStatus            `json:"runStatus"`
	Report    *orchestrator.Report `json:"report,omitempty"`
}

type ResponseRunAction struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunId   string            `json:"runId"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default:
		}
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

// parseSteps reads the optional steps query parameter: all (default), load or transform.
func parseSteps(r *http.Request) (Steps, error) {
	switch strings.ToLower(r.URL.Query().Get("steps")) {
	case "", "all":
		return StepsAll, nil
	case "load":
		return StepsLoadOnly, nil
	case "transform":
		return StepsTransformOnly, nil
	}
	return Steps{}, fmt.Errorf("unknown steps %q: use all, load or transform", r.URL.Query().Get("steps"))
}

// GetHandlerRunLaunch starts a pipeline run in the background. Only one run may be active at a time.
func GetHandlerRunLaunch(log logger.Logger, runs *SafeMapRunInfo, newRun RunLauncher) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		steps, err := parseSteps(r)
		if err != nil {
			logAndRespond(log, err, w, http.StatusBadRequest, ResponseRunAction{Status: Error, Message: err.Error()})
			return
		}
		id := xid.New().String()
		ctx, cancel := context.WithCancel(context.Background())
		if active, ok := runs.Reserve(id, steps, cancel); !ok {
			cancel()
			w.WriteHeader(http.StatusConflict)
			respond(log, w, ResponseRunAction{Status: Error, Message: "a run is already in progress", RunId: active})
			return
		}
		o, err := newRun(steps)
		if err != nil {
			runs.Delete(id)
			cancel()
			logAndRespond(log, err, w, http.StatusInternalServerError,
				ResponseRunAction{Status: Error, Message: fmt.Sprintf("unable to start run: %v", err)})
			return
		}
		chanStatus := make(chan RunStatus, 3)
		runs.Store(id, RunInfo{Id: id, Steps: steps, Orchestrator: o, Cancel: cancel, Status: RunStatus{Status: StatusStarting}})
		go runs.ConsumeRunStatusChanges(id, chanStatus)
		go func() {
			defer close(chanStatus)
			defer cancel()
			chanStatus <- RunStatus{Status: StatusRunning}
			code := o.Run(ctx)
			report := o.Report()
			switch {
			case report.Interrupted:
				chanStatus <- RunStatus{Status: StatusShutdown, Error: report.Error}
			case code != 0:
				chanStatus <- RunStatus{Status: StatusCompleteWithError, Error: report.Error}
			default:
				chanStatus <- RunStatus{Status: StatusComplete}
			}
		}()
		log.Info("launched run ", id)
		w.WriteHeader(http.StatusAccepted)
		respond(log, w, ResponseRunAction{Status: Okay, Message: "run launched", RunId: id})
	}
}

func GetHandlerRunStop(log logger.Logger, runs *SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := runs.Load(id)
		switch {
		case !ok:
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponseRunAction{Status: Error, Message: "run does not exist", RunId: id})
		case ri.Status.RunIsFinished():
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponseRunAction{Status: Error, Message: "run already ended", RunId: id})
		default:
			log.Info("Stopping run ", id)
			ri.Cancel()
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponseRunAction{Status: Okay, Message: "shutting down", RunId: id})
		}
	}
}

func GetHandlerRunList(log logger.Logger, runs *SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		list := make([]RunListItem, 0)
		for _, id := range runs.Ids() {
			if ri, ok := runs.Load(id); ok {
				list = append(list, RunListItem{RunId: id, RunStatus: ri.Status.Status})
			}
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunList{Status: Okay, RunList: list})
	}
}

func GetHandlerRunStatus(log logger.Logger, runs *SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := runs.Load(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponseRunStatus{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		res := ResponseRunStatus{Status: Okay, RunStatus: ri.Status}
		if ri.Orchestrator != nil {
			report := ri.Orchestrator.Report()
			res.Report = &report
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, res)
	}
}

// logAndRespond will log the error, write the status code and r to w.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, code int, r ResponseRunAction) {
	log.Error(err)
	w.WriteHeader(code)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Error(err)
	}
}
