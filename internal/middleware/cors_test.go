package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	const frontend = "http://localhost:3000"

	tests := []struct {
		name          string
		allowed       []string
		method        string
		origin        string
		wantStatus    int
		wantAllow     string
		wantPreflight bool
		wantNext      bool
	}{
		{
			name: "許可オリジンのGET", allowed: []string{frontend}, method: http.MethodGet, origin: frontend,
			wantStatus: http.StatusOK, wantAllow: frontend, wantNext: true,
		},
		{
			name: "末尾スラッシュ付きで設定", allowed: []string{frontend + "/"}, method: http.MethodPost, origin: frontend,
			wantStatus: http.StatusOK, wantAllow: frontend, wantNext: true,
		},
		{
			name: "複数オリジンの2番目", allowed: []string{"https://smartpaw.example", frontend}, method: http.MethodGet, origin: frontend,
			wantStatus: http.StatusOK, wantAllow: frontend, wantNext: true,
		},
		{
			name: "許可オリジンのプリフライト", allowed: []string{frontend}, method: http.MethodOptions, origin: frontend,
			wantStatus: http.StatusNoContent, wantAllow: frontend, wantPreflight: true,
		},
		{
			name: "未知のオリジンにはヘッダーを返さない", allowed: []string{frontend}, method: http.MethodGet, origin: "https://evil.test",
			wantStatus: http.StatusOK, wantNext: true,
		},
		{
			name: "未知のオリジンのOPTIONSは次へ渡す", allowed: []string{frontend}, method: http.MethodOptions, origin: "https://evil.test",
			wantStatus: http.StatusOK, wantNext: true,
		},
		{
			name: "Originなし", allowed: []string{frontend}, method: http.MethodGet,
			wantStatus: http.StatusOK, wantNext: true,
		},
		{
			name: "許可リストが空", allowed: []string{"", " "}, method: http.MethodGet, origin: frontend,
			wantStatus: http.StatusOK, wantNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCORSMiddleware(tt.allowed...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(tt.method, "/auth/signin", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantNext {
				t.Errorf("next called = %v, want %v", called, tt.wantNext)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.wantAllow != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("Allow-Credentials = true が必要")
			}
			if got := w.Header().Get("Access-Control-Allow-Methods") != ""; got != tt.wantPreflight {
				t.Errorf("Allow-Methods present = %v, want %v", got, tt.wantPreflight)
			}
		})
	}
}

func TestCORSMiddleware_プリフライトのヘッダー(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	want := map[string]string{
		"Access-Control-Allow-Methods": "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, X-CSRF-Token",
		"Access-Control-Max-Age":       "86400",
		"Vary":                         "Origin",
	}
	for header, v := range want {
		if got := w.Header().Get(header); got != v {
			t.Errorf("%s = %q, want %q", header, got, v)
		}
	}
}
