package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/smartpaw/internal/metrics"
)

type statusSpy struct {
	metrics.Nop
	statuses []int
}

func (s *statusSpy) RecordHTTPStatus(code int) {
	s.statuses = append(s.statuses, code)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "WriteHeaderなしは200",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			want:    http.StatusOK,
		},
		{
			name:    "明示的なステータス",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &statusSpy{}
			handler := NewMetricsMiddleware(spy)(tt.handler)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/services/walking", nil))

			if len(spy.statuses) != 1 || spy.statuses[0] != tt.want {
				t.Errorf("statuses = %v, want [%d]", spy.statuses, tt.want)
			}
		})
	}
}
