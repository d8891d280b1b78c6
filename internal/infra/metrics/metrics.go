// Package metrics 收集单次 run 的指标，并以 Prometheus textfile 格式落盘
// （供 node_exporter 的 textfile collector 采集）。
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

const namespace = "blend2egg"

// Collector 使用独立的 Registry（不污染全局默认 Registry）。
type Collector struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	filesTotal    *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec
	lastRun       prometheus.Gauge

	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of conversion runs by pipeline and final status",
		}, []string{"pipeline", "status"}),
		filesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Number of source files by per-file status",
		}, []string{"status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a conversion run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"pipeline"}),
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of run phases (plan, convert, verify)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished",
		}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (c *Collector) ObservePhase(name string, dur time.Duration) {
	c.phaseDuration.WithLabelValues(name).Observe(dur.Seconds())
}

// RecordRun 记录一份已 Finalize 的报告。
func (c *Collector) RecordRun(rr domain.RunReport) {
	c.runsTotal.WithLabelValues(rr.Pipeline, rr.Status).Inc()
	for _, f := range rr.Files {
		c.filesTotal.WithLabelValues(f.Status).Inc()
	}
	if !rr.FinishedAt.IsZero() {
		c.runDuration.WithLabelValues(rr.Pipeline).Observe(rr.FinishedAt.Sub(rr.StartedAt).Seconds())
		c.lastRun.Set(float64(rr.FinishedAt.Unix()))
	}
}

// WriteTextfile 原子写出全部指标（目录不存在时创建）。
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return err
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
