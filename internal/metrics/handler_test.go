package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, accept string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHandler_記録した値を公開する(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthAction("signin", "success")
	c.RecordListingCreated("grooming")

	resp, body := scrape(t, Handler(reg), "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{
		`smartpaw_auth_actions_total{action="signin",outcome="success"} 1`,
		`smartpaw_listings_created_total{kind="grooming"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("%q が含まれていない", want)
		}
	}
}

func TestHandler_スクレイプ回数を記録する(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := Handler(reg)

	scrape(t, h, "")
	_, body := scrape(t, h, "")

	if !strings.Contains(body, `promhttp_metric_handler_requests_total{code="200"} 1`) {
		t.Errorf("1回目のスクレイプが記録されていない:\n%s", body)
	}
}

func TestHandler_OpenMetrics形式(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordImageFallback()

	resp, body := scrape(t, Handler(reg), "application/openmetrics-text; version=1.0.0")

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/openmetrics-text") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "# EOF") {
		t.Error("OpenMetrics形式は# EOFで終わる")
	}
}
