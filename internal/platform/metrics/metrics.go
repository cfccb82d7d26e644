package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// RemoteRequestsTotal：对 Bitly API 发出的请求数（Counter）。
	//
	// labels：
	// - op：fetch_user / shorten
	// - status：HTTP 状态码字符串；传输层失败记为 "error"
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitcli_remote_requests_total",
			Help: "Bitly API 请求总数",
		},
		[]string{"op", "status"},
	)

	// RemoteRequestDurationSeconds：远端请求耗时分布（Histogram）。
	RemoteRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitcli_remote_request_duration_seconds",
			Help:    "Bitly API request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// CacheOperations：缓存各层的命中情况。
	//
	// labels：
	// - layer：l1（进程内）/ bloom / sqlite / redis
	// - result：hit / miss / insert / conflict / error
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitcli_cache_operations_total",
			Help: "Cache operations by layer and result.",
		},
		[]string{"layer", "result"},
	)

	// ShortenResultsTotal：单个 URL 的最终结果（cached / remote / 各类错误）。
	ShortenResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitcli_shorten_results_total",
			Help: "Shorten operation outcomes.",
		},
		[]string{"result"},
	)

	// InflightShortens：当前正在执行的缩短操作数（Gauge），不会超过 max_concurrent。
	InflightShortens = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitcli_inflight_shortens",
			Help: "Current number of in-flight shorten operations.",
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RemoteRequestsTotal,
			RemoteRequestDurationSeconds,
			CacheOperations,
			ShortenResultsTotal,
			InflightShortens,
		)
	})
}

// WriteTextfile 把当前指标写成 node_exporter textfile collector 可读取的格式。
// CLI 是短进程，没有 /metrics 端点可抓取。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
