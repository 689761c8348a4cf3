package account

import (
	"net/http"
	"time"
)

// CallResult はHTTPステータスコードに基づく呼び出し結果の分類。
type CallResult int

const (
	// CallResultOK は成功（2xx）。
	CallResultOK CallResult = iota
	// CallResultStop は再試行しても結果が変わらないステータス（4xx）。
	CallResultStop
	// CallResultBackoff はバックオフ後に再試行するステータス（429/5xx）。
	CallResultBackoff
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 2 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return CallResultOK
	case statusCode == http.StatusTooManyRequests:
		return CallResultBackoff
	case statusCode >= 500:
		return CallResultBackoff
	default:
		return CallResultStop
	}
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
