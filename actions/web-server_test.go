package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/orchestrator"
	"github.com/relloyd/sunglass-etl/orchestrator/mocks"
	"github.com/relloyd/sunglass-etl/pipeline"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFixture struct {
	srv       *httptest.Server
	runs      *SafeMapRunInfo
	chanStop  chan string
	loader    *mocks.MockLoader
	runner    *mocks.MockRunner
	mu        sync.Mutex
	steps     []Steps
	launchErr error
}

func (f *serverFixture) launched() []Steps {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Steps(nil), f.steps...)
}

func newServerFixture(t *testing.T) *serverFixture {
	ctrl := gomock.NewController(t)
	f := &serverFixture{
		runs:     NewSafeMapRunInfo(),
		chanStop: make(chan string, 1),
		loader:   mocks.NewMockLoader(ctrl),
		runner:   mocks.NewMockRunner(ctrl),
	}
	log := logger.NewNullLogger()
	web := &WebServerConfig{
		LogLevel: "info",
		Port:     8080,
		Metrics:  stats.NewMetrics(),
		NewRun: func(steps Steps) (*orchestrator.Orchestrator, error) {
			f.mu.Lock()
			f.steps = append(f.steps, steps)
			launchErr := f.launchErr
			f.mu.Unlock()
			if launchErr != nil {
				return nil, launchErr
			}
			return orchestrator.NewOrchestrator(orchestrator.Config{
				Log:             log,
				Out:             io.Discard,
				Loader:          f.loader,
				Transformer:     f.runner,
				PipelineName:    "sunglass_store",
				RawDataset:      "raw",
				DbtDataset:      "dbt",
				PackageLocation: "pkg",
				SkipLoad:        !steps.Load,
				SkipTransform:   !steps.Transform,
			})
		},
	}
	f.srv = httptest.NewServer(newRouter(log, web, f.runs, f.chanStop))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path string, out interface{}) int {
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *serverFixture) waitFinished(t *testing.T, id string) RunInfo {
	require.Eventually(t, func() bool {
		ri, ok := f.runs.Load(id)
		return ok && ri.Status.RunIsFinished()
	}, 5*time.Second, 10*time.Millisecond)
	ri, _ := f.runs.Load(id)
	return ri
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)
	var got map[string]string
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", &got))
	assert.Equal(t, "ok", got["status"])
}

func TestLaunchRunCompletes(t *testing.T) {
	f := newServerFixture(t)
	f.loader.EXPECT().RunLoad(gomock.Any(), gomock.Any(), "raw").Return(&pipeline.LoadSummary{Dataset: "raw"}, nil)
	f.runner.EXPECT().RunTransform(gomock.Any(), "pkg", "dbt").
		Return([]transform.ModelResult{{Name: "stg_users", Status: transform.StatusSuccess}}, nil)

	var launched map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs", &launched))
	id := launched["runId"]
	require.NotEmpty(t, id)
	ri := f.waitFinished(t, id)
	assert.Equal(t, StatusComplete, ri.Status.Status)
	assert.Equal(t, []Steps{StepsAll}, f.launched())

	var status struct {
		RunStatus struct {
			RunStatus string `json:"runStatus"`
		} `json:"runStatus"`
		Report orchestrator.Report `json:"report"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/runs/"+id+"/status", &status))
	assert.Equal(t, "complete", status.RunStatus.RunStatus)
	assert.Equal(t, "Done", status.Report.StateName)
	require.Len(t, status.Report.Models, 1)

	var list struct {
		Runs []struct {
			RunId     string `json:"runId"`
			RunStatus string `json:"runStatus"`
		} `json:"runs"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/runs", &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, id, list.Runs[0].RunId)
}

func TestLaunchRejectsConcurrentRun(t *testing.T) {
	f := newServerFixture(t)
	release := make(chan struct{})
	f.loader.EXPECT().RunLoad(gomock.Any(), gomock.Any(), "raw").
		DoAndReturn(func(ctx context.Context, jobs []*pipeline.Job, dataset string) (*pipeline.LoadSummary, error) {
			<-release
			return &pipeline.LoadSummary{Dataset: dataset}, nil
		})

	var first map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs?steps=load", &first))
	var second map[string]string
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/runs", &second))
	assert.Equal(t, first["runId"], second["runId"])

	close(release)
	ri := f.waitFinished(t, first["runId"])
	assert.Equal(t, StatusComplete, ri.Status.Status)
	assert.Equal(t, []Steps{StepsLoadOnly}, f.launched())
}

func TestLaunchConcurrentRequestsAcceptOne(t *testing.T) {
	f := newServerFixture(t)
	release := make(chan struct{})
	f.loader.EXPECT().RunLoad(gomock.Any(), gomock.Any(), "raw").
		DoAndReturn(func(ctx context.Context, jobs []*pipeline.Job, dataset string) (*pipeline.LoadSummary, error) {
			<-release
			return &pipeline.LoadSummary{Dataset: dataset}, nil
		}).Times(1)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		codes    = make(map[int]int)
		accepted string
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/runs?steps=load", nil)
			if !assert.NoError(t, err) {
				return
			}
			resp, err := http.DefaultClient.Do(req)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			var got map[string]string
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			mu.Lock()
			defer mu.Unlock()
			codes[resp.StatusCode]++
			if resp.StatusCode == http.StatusAccepted {
				accepted = got["runId"]
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, map[int]int{http.StatusAccepted: 1, http.StatusConflict: n - 1}, codes)
	require.NotEmpty(t, accepted)
	assert.Len(t, f.launched(), 1)
	close(release)
	ri := f.waitFinished(t, accepted)
	assert.Equal(t, StatusComplete, ri.Status.Status)
	assert.Equal(t, []string{accepted}, f.runs.Ids())
}

func TestLaunchFailureReleasesReservation(t *testing.T) {
	f := newServerFixture(t)
	f.mu.Lock()
	f.launchErr = assert.AnError
	f.mu.Unlock()

	var got map[string]string
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, "/runs?steps=load", &got))
	assert.Contains(t, got["message"], assert.AnError.Error())
	assert.Empty(t, f.runs.Ids())

	f.mu.Lock()
	f.launchErr = nil
	f.mu.Unlock()
	f.loader.EXPECT().RunLoad(gomock.Any(), gomock.Any(), "raw").Return(&pipeline.LoadSummary{Dataset: "raw"}, nil)
	var launched map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs?steps=load", &launched))
	ri := f.waitFinished(t, launched["runId"])
	assert.Equal(t, StatusComplete, ri.Status.Status)
}

func TestStopRun(t *testing.T) {
	f := newServerFixture(t)
	f.loader.EXPECT().RunLoad(gomock.Any(), gomock.Any(), "raw").
		DoAndReturn(func(ctx context.Context, jobs []*pipeline.Job, dataset string) (*pipeline.LoadSummary, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	var launched map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs", &launched))
	id := launched["runId"]
	var stopped map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/runs/"+id+"/stop", &stopped))
	assert.Equal(t, "ok", stopped["status"])

	ri := f.waitFinished(t, id)
	assert.Equal(t, StatusShutdown, ri.Status.Status)
	assert.True(t, ri.Orchestrator.Report().Interrupted)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/runs/"+id+"/stop", &stopped))
	assert.Equal(t, "run already ended", stopped["message"])
}

func TestLaunchRunFailureRecordsError(t *testing.T) {
	f := newServerFixture(t)
	f.runner.EXPECT().RunTransform(gomock.Any(), "pkg", "dbt").
		Return(nil, assert.AnError)

	var launched map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs?steps=transform", &launched))
	ri := f.waitFinished(t, launched["runId"])
	assert.Equal(t, StatusCompleteWithError, ri.Status.Status)
	assert.Contains(t, ri.Status.Error, assert.AnError.Error())
}

func TestUnknownRunAndSteps(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs/nope/status", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/runs/nope/stop", nil))
	var got map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/runs?steps=sideways", &got))
	assert.Contains(t, got["message"], "sideways")
	assert.Empty(t, f.launched())
}

func TestStopServer(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/stop", nil))
	select {
	case <-f.chanStop:
	case <-time.After(time.Second):
		t.Fatal("stop signal not sent")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServerFixture(t)
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunWebServerValidation(t *testing.T) {
	log := logger.NewNullLogger()
	assert.Error(t, RunWebServer(log, nil))
	assert.Error(t, RunWebServer(log, &WebServerConfig{LogLevel: "info", Port: 8080}))
}
