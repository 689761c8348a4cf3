package middleware

import (
	"net/http"

	"github.com/hitoshi/smartpaw/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			collector.RecordHTTPStatus(rec.statusOrDefault())
		})
	}
}
