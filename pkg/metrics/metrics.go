package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xianwai"

// Metrics 指标管理器，每个实例持有独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 语音合成
	synthesisAttempts *prometheus.CounterVec

	// 生成流程
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	orphanFilesRemoved prometheus.Counter
	deletedArtifacts   *prometheus.CounterVec

	// 限流
	rateLimitAllow *prometheus.CounterVec
	rateLimitDeny  *prometheus.CounterVec
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		synthesisAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_attempts_total",
				Help:      "Provider calls by outcome (success, transient, terminal)",
			},
			[]string{"outcome"},
		),

		generationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_total",
				Help:      "Generation requests by final state",
			},
			[]string{"result"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_stage_duration_seconds",
				Help:      "Time spent in each generation stage",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"stage"},
		),
		orphanFilesRemoved: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphan_files_removed_total",
				Help:      "Audio files removed by the orphan sweep",
			},
		),
		deletedArtifacts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_deletes_total",
				Help:      "Artifact deletions by result",
			},
			[]string{"result"},
		),

		rateLimitAllow: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_allow_total",
			Help:      "Allowed requests by rate limiter",
		}, []string{"route"}),
		rateLimitDeny: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_deny_total",
			Help:      "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAttempt 供合成客户端回调
func (m *Metrics) ObserveAttempt(outcome string) {
	m.synthesisAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGeneration(result string) {
	m.generationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.generationDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveArtifactDelete(result string) {
	m.deletedArtifacts.WithLabelValues(result).Inc()
}

func (m *Metrics) AddOrphansRemoved(n int) {
	m.orphanFilesRemoved.Add(float64(n))
}

// OnAllow / OnDeny 实现限流器的 MetricsObserver
func (m *Metrics) OnAllow(route, key string) { m.rateLimitAllow.WithLabelValues(route).Inc() }
func (m *Metrics) OnDeny(route, key string)  { m.rateLimitDeny.WithLabelValues(route).Inc() }
