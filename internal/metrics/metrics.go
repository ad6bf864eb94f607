// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・外部APIクライアント・ワーカーから利用する。
type MetricsCollector interface {
	RecordUpstreamSuccess(operation string)
	RecordUpstreamFailure(operation string, reason string)
	RecordUpstreamLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordMovieCreated()
	RecordRankingsRecomputed(count int)
	RecordPosterCached()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamSuccess    *prometheus.CounterVec
	upstreamFail       *prometheus.CounterVec
	upstreamLatency    prometheus.Histogram
	httpStatus         *prometheus.CounterVec
	moviesCreated      prometheus.Counter
	rankingsRecomputed prometheus.Counter
	postersCached      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_upstream_success_total",
			Help: "映画情報プロバイダAPI呼び出し成功の合計数",
		}, []string{"operation"}),
		upstreamFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_upstream_fail_total",
			Help: "映画情報プロバイダAPI呼び出し失敗の合計数",
		}, []string{"operation", "reason"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinelog_upstream_latency_seconds",
			Help:    "映画情報プロバイダAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		moviesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinelog_movies_created_total",
			Help: "登録された映画の合計数",
		}),
		rankingsRecomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinelog_rankings_recomputed_total",
			Help: "再計算で更新されたランキング行の合計数",
		}),
		postersCached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinelog_posters_cached_total",
			Help: "キャッシュされたポスター画像の合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamSuccess,
		c.upstreamFail,
		c.upstreamLatency,
		c.httpStatus,
		c.moviesCreated,
		c.rankingsRecomputed,
		c.postersCached,
	)

	return c
}

// RecordUpstreamSuccess は外部API呼び出し成功を記録する。
func (c *Collector) RecordUpstreamSuccess(operation string) {
	c.upstreamSuccess.WithLabelValues(operation).Inc()
}

// RecordUpstreamFailure は外部API呼び出し失敗を記録する。
func (c *Collector) RecordUpstreamFailure(operation string, reason string) {
	c.upstreamFail.WithLabelValues(operation, reason).Inc()
}

// RecordUpstreamLatency は外部API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordMovieCreated は映画の登録を記録する。
func (c *Collector) RecordMovieCreated() {
	c.moviesCreated.Inc()
}

// RecordRankingsRecomputed は再計算で更新された行数を記録する。
func (c *Collector) RecordRankingsRecomputed(count int) {
	c.rankingsRecomputed.Add(float64(count))
}

// RecordPosterCached はポスター画像のキャッシュを記録する。
func (c *Collector) RecordPosterCached() {
	c.postersCached.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
