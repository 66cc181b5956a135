package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docrag"

// Metrics はアプリケーションのPrometheusメトリクスを保持する
// 専用のレジストリを使うため、複数インスタンスを作ってもグローバル状態は汚れない
type Metrics struct {
	registry       *prometheus.Registry
	ingestedChunks prometheus.Counter
	jobs           *prometheus.CounterVec
	recordFailures prometheus.Counter
	queryDuration  prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// New は新しい Metrics を作成する
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Number of chunks added to the index.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Number of query jobs that reached a terminal status.",
		}, []string{"status"}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_record_failures_total",
			Help:      "Number of job failures that could not be recorded in the job store.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of answered queries.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		m.ingestedChunks,
		m.jobs,
		m.recordFailures,
		m.queryDuration,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry はメトリクスのレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ChunksIngested はインデックスに追加したチャンク数を加算する
func (m *Metrics) ChunksIngested(added int) {
	if added > 0 {
		m.ingestedChunks.Add(float64(added))
	}
}

// QueryObserved は回答生成までの所要時間を記録する
func (m *Metrics) QueryObserved(d time.Duration) {
	m.queryDuration.Observe(d.Seconds())
}

// JobCompleted は終端状態に達したジョブを数える
func (m *Metrics) JobCompleted(status string) {
	m.jobs.WithLabelValues(status).Inc()
}

// RecordFailed は失敗状態を記録できなかったジョブを数える
func (m *Metrics) RecordFailed() {
	m.recordFailures.Inc()
}

// Handler は /metrics 用のHTTPハンドラーを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware はリクエスト数をルート単位で数えるミドルウェア
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
