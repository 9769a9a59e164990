// Package metrics 分配引擎的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "drmp"

// 分配方式标签
const (
	ModeAuto  = "auto"
	ModeBatch = "batch"
)

// Metrics 分配结果计数、打分耗时、批量规模与规则使用统计。
// nil *Metrics 的所有方法均为空操作。
type Metrics struct {
	assignments   *prometheus.CounterVec
	scoring       *prometheus.HistogramVec
	batchSize     prometheus.Histogram
	ruleUsage     *prometheus.CounterVec
	eventFailures prometheus.Counter
}

// New 创建指标并注册到 reg（nil 时使用 prometheus.DefaultRegisterer）
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Metrics{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "results_total",
			Help:      "Assignment outcomes by mode, result and error code.",
		}, []string{"mode", "result", "error_code"}),
		scoring: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "scoring_seconds",
			Help:      "Time spent scoring one package against the eligible organizations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"strategy"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "batch_size",
			Help:      "Number of packages per batch assignment request.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		ruleUsage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "usage_total",
			Help:      "Auto-assignment attempts per rule and outcome.",
		}, []string{"rule_id", "result"}),
		eventFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emit_failures_total",
			Help:      "Flow events that could not be delivered to every sink.",
		}),
	}
	reg.MustRegister(m.assignments, m.scoring, m.batchSize, m.ruleUsage, m.eventFailures)
	return m
}

// ObserveAssignment 记录一次分配结果；errorCode 为空表示成功
func (m *Metrics) ObserveAssignment(mode string, success bool, errorCode string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(mode, resultLabel(success), errorCode).Inc()
}

// ObserveScoring 记录打分耗时
func (m *Metrics) ObserveScoring(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.scoring.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveBatch 记录批量规模
func (m *Metrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

// ObserveRuleUsage 记录规则使用
func (m *Metrics) ObserveRuleUsage(ruleID string, success bool) {
	if m == nil {
		return
	}
	m.ruleUsage.WithLabelValues(ruleID, resultLabel(success)).Inc()
}

// ObserveEventFailure 记录流转事件投递失败
func (m *Metrics) ObserveEventFailure() {
	if m == nil {
		return
	}
	m.eventFailures.Inc()
}

// Handler /metrics 端点
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
