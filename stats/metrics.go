package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the pipeline's prometheus collectors on a private registry.
type Metrics struct {
	reg              *prometheus.Registry
	RowsLoaded       *prometheus.CounterVec
	TableFailures    *prometheus.CounterVec
	TableDurationSec *prometheus.HistogramVec
	ModelResults     *prometheus.CounterVec
	ModelDurationSec *prometheus.HistogramVec
	RunsTotal        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunglass_etl_rows_loaded_total",
		Help: "Rows written to the raw dataset.",
	}, []string{"table", "strategy"})
	tableFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunglass_etl_table_load_failures_total",
		Help: "Table loads that failed.",
	}, []string{"table"})
	tableDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sunglass_etl_table_load_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"table"})
	modelResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunglass_etl_model_results_total",
		Help: "Transformation model outcomes.",
	}, []string{"model", "status"})
	modelDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sunglass_etl_model_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunglass_etl_runs_total",
		Help: "Pipeline runs by final state.",
	}, []string{"state"})
	r.MustRegister(rowsLoaded, tableFailures, tableDuration, modelResults, modelDuration, runs)
	return &Metrics{
		reg:              r,
		RowsLoaded:       rowsLoaded,
		TableFailures:    tableFailures,
		TableDurationSec: tableDuration,
		ModelResults:     modelResults,
		ModelDurationSec: modelDuration,
		RunsTotal:        runs,
	}
}

func (m *Metrics) ObserveTable(table, strategy string, rows int64, d time.Duration, failed bool) {
	if failed {
		m.TableFailures.WithLabelValues(table).Inc()
	} else {
		m.RowsLoaded.WithLabelValues(table, strategy).Add(float64(rows))
	}
	m.TableDurationSec.WithLabelValues(table).Observe(d.Seconds())
}

func (m *Metrics) ObserveModel(model, status string, d time.Duration) {
	m.ModelResults.WithLabelValues(model, status).Inc()
	m.ModelDurationSec.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(state string) {
	m.RunsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler { return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}) }

// Push sends the current metrics to a prometheus pushgateway.
// Short-lived batch runs use this since nothing scrapes them.
func (m *Metrics) Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.reg).Push()
}
