package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 同步运行的指标，使用独立的 prometheus registry
type Registry struct {
	reg *prometheus.Registry

	Records           *prometheus.CounterVec // 按结果分类：new/updated/skipped/errored
	MonthsCompleted   prometheus.Counter
	MonthsFailed      prometheus.Counter
	BatchesFailed     prometheus.Counter
	GeocodeLookups    *prometheus.CounterVec // 按来源分类：cache/service/fallback/none
	GeocodeCalls      prometheus.Counter
	SuppliersCreated  prometheus.Counter
	AmendmentsCreated prometheus.Counter
	RunDurationSec    prometheus.Histogram
	LastRunUnix       prometheus.Gauge
	RunInProgress     prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractsync_records_total",
		Help: "按处理结果统计的合同记录数",
	}, []string{"outcome"})
	monthsCompleted := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_months_completed_total"})
	monthsFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_months_failed_total"})
	batchesFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_batches_failed_total"})
	geocodeLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractsync_geocode_lookups_total",
	}, []string{"source"})
	geocodeCalls := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_geocode_calls_total"})
	suppliers := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_suppliers_created_total"})
	amendments := prometheus.NewCounter(prometheus.CounterOpts{Name: "contractsync_amendments_created_total"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "contractsync_run_duration_seconds",
		Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{Name: "contractsync_last_run_timestamp_seconds"})
	inProgress := prometheus.NewGauge(prometheus.GaugeOpts{Name: "contractsync_run_in_progress"})

	r.MustRegister(records, monthsCompleted, monthsFailed, batchesFailed, geocodeLookups, geocodeCalls,
		suppliers, amendments, duration, lastRun, inProgress)
	return &Registry{
		reg:               r,
		Records:           records,
		MonthsCompleted:   monthsCompleted,
		MonthsFailed:      monthsFailed,
		BatchesFailed:     batchesFailed,
		GeocodeLookups:    geocodeLookups,
		GeocodeCalls:      geocodeCalls,
		SuppliersCreated:  suppliers,
		AmendmentsCreated: amendments,
		RunDurationSec:    duration,
		LastRunUnix:       lastRun,
		RunInProgress:     inProgress,
	}
}

// Gatherer 供测试读取当前指标
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
