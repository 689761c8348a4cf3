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
// 認証コーディネーター、掲載サービス、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAction(action, outcome string)
	RecordRateLimited(action string)
	RecordActionLatency(action string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordListingCreated(kind string)
	RecordImageFallback()
	RecordSessionsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authActions    *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
	listings       *prometheus.CounterVec
	imageFallback  prometheus.Counter
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpaw_auth_actions_total",
			Help: "認証アクションの結果別の合計数",
		}, []string{"action", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpaw_auth_rate_limited_total",
			Help: "レート制限で拒否された認証アクションの合計数",
		}, []string{"action"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartpaw_auth_action_latency_seconds",
			Help:    "認証アクションのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpaw_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpaw_listings_created_total",
			Help: "種別ごとの作成されたサービス掲載数",
		}, []string{"kind"}),
		imageFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpaw_image_upload_fallback_total",
			Help: "画像アップロード失敗でプレースホルダーを使用した回数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpaw_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.authActions,
		c.rateLimited,
		c.actionLatency,
		c.httpStatus,
		c.listings,
		c.imageFallback,
		c.sessionsPurged,
	)

	return c
}

// RecordAuthAction は認証アクションの結果を記録する。
func (c *Collector) RecordAuthAction(action, outcome string) {
	c.authActions.WithLabelValues(action, outcome).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(action string) {
	c.rateLimited.WithLabelValues(action).Inc()
}

// RecordActionLatency は認証アクションのレイテンシを記録する。
func (c *Collector) RecordActionLatency(action string, duration time.Duration) {
	c.actionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordListingCreated は掲載の作成を記録する。
func (c *Collector) RecordListingCreated(kind string) {
	c.listings.WithLabelValues(kind).Inc()
}

// RecordImageFallback はプレースホルダー画像へのフォールバックを記録する。
func (c *Collector) RecordImageFallback() {
	c.imageFallback.Inc()
}

// RecordSessionsPurged は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int) {
	c.sessionsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthAction(string, string)           {}
func (Nop) RecordRateLimited(string)                  {}
func (Nop) RecordActionLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                      {}
func (Nop) RecordListingCreated(string)               {}
func (Nop) RecordImageFallback()                      {}
func (Nop) RecordSessionsPurged(int)                  {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// スクレイプ自体の回数もregに記録し、Acceptに応じてOpenMetrics形式でも応答する。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))
}
