package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/smartpaw/internal/model"
)

// defaultMaxAttempts は削除エンドポイント呼び出しの最大試行回数。
const defaultMaxAttempts = 3

// ClientConfig はClientの設定。
type ClientConfig struct {
	Endpoint    string // 例: http://localhost:8080/functions/delete-account
	AnonKey     string
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client はアカウント削除エンドポイントの呼び出し側クライアント。
// 429と5xx、通信エラーは指数バックオフで再試行する。
type Client struct {
	config ClientConfig
	http   *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient はClientを生成する。
func NewClient(config ClientConfig) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		config: config,
		http:   httpClient,
		sleep:  sleepContext,
	}
}

// DeleteAccount はアクセストークンの持ち主のアカウント削除を要求する。
// {success:false}の応答はエンドポイントのエラーメッセージを持つAPIErrorになる。
func (c *Client) DeleteAccount(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return model.NewUnauthorizedError()
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, CalculateBackoff(attempt-1)); err != nil {
				return fmt.Errorf("account deletion cancelled: %w", err)
			}
		}

		status, body, err := c.post(ctx, accessToken)
		if err != nil {
			lastErr = err
			slog.Warn("account deletion request failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		var resp model.DeleteAccountResponse
		_ = json.Unmarshal(body, &resp)

		switch ClassifyHTTPStatus(status) {
		case CallResultOK:
			if !resp.Success {
				return model.NewDeletionFailedError(deletionMessage(resp))
			}
			return nil
		case CallResultBackoff:
			lastErr = model.NewDeletionFailedError(deletionMessage(resp))
			slog.Warn("account deletion endpoint unavailable",
				slog.Int("attempt", attempt+1),
				slog.Int("status", status),
			)
			continue
		default:
			if status == http.StatusUnauthorized {
				return model.NewUnauthorizedError()
			}
			return model.NewDeletionFailedError(deletionMessage(resp))
		}
	}

	if _, ok := lastErr.(*model.APIError); ok {
		return lastErr
	}
	return model.NewDeletionFailedError(model.DefaultDeletionFailedMessage)
}

// post は削除エンドポイントにPOSTし、ステータスとボディを返す。
func (c *Client) post(ctx context.Context, accessToken string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.config.AnonKey != "" {
		req.Header.Set("apikey", c.config.AnonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func deletionMessage(resp model.DeleteAccountResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	return model.DefaultDeletionFailedMessage
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合はエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
