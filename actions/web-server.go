package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/orchestrator"
	"github.com/relloyd/sunglass-etl/stats"
)

// RunLauncher builds a ready-to-run orchestrator for the given steps.
type RunLauncher func(steps Steps) (*orchestrator.Orchestrator, error)

type WebServerConfig struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	Scheme           string `errorTxt:"scheme" mandatory:"no"`
	Addr             net.IP `errorTxt:"address" mandatory:"no"`
	Port             int    `errorTxt:"port" mandatory:"yes"`
	StackDumpOnPanic bool
	Metrics          *stats.Metrics
	NewRun           RunLauncher
}

func RunWebServer(log logger.Logger, web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	if web.NewRun == nil {
		return errors.New("web server config has no run launcher")
	}
	if web.Metrics == nil {
		web.Metrics = stats.NewMetrics()
	}
	srv, chanStopServer, runs := runServer(log, web)
	return waitForServer(log, srv, chanStopServer, runs)
}

func newRouter(log logger.Logger, web *WebServerConfig, runs *SafeMapRunInfo, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stop", GetHandlerStopServer(log, chanStopServer)).Methods(http.MethodPost)
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/metrics").Handler(web.Metrics.Handler())
	r.Path("/runs").Methods(http.MethodGet).HandlerFunc(GetHandlerRunList(log, runs))
	r.Path("/runs").Methods(http.MethodPost).HandlerFunc(GetHandlerRunLaunch(log, runs, web.NewRun))
	r.Path("/runs/{runId}/status").Methods(http.MethodGet).HandlerFunc(GetHandlerRunStatus(log, runs))
	r.Path("/runs/{runId}/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerRunStop(log, runs))
	return r
}

// runServer starts a web server and returns the server, a channel that stops it and the runs it tracks.
func runServer(log logger.Logger, web *WebServerConfig) (*http.Server, chan string, *SafeMapRunInfo) {
	chanStopServer := make(chan string, 1)
	runs := NewSafeMapRunInfo()
	srv := &http.Server{
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(log, web, runs, chanStopServer),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Error(err)
				chanStopServer <- "listen failed"
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return srv, chanStopServer, runs
}

// waitForServer blocks until a stop request or SIGINT/SIGTERM, stops any running pipeline and shuts down.
func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string, runs *SafeMapRunInfo) error {
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(chanOS)
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	log.Info("Shutting down web server...")
	runs.RLock()
	for _, ri := range runs.Internal {
		if !ri.Status.RunIsFinished() {
			ri.Cancel()
		}
	}
	runs.RUnlock()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, running := runs.Running(); !running {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
