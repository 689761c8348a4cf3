// Package storage はホスティング型オブジェクトストレージのRESTクライアントを提供する。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBucketNotFound はバケットが存在しない場合のエラー。
var ErrBucketNotFound = errors.New("storage bucket not found")

// Config はストレージクライアントの設定。
type Config struct {
	BaseURL    string // 例: https://xyz.supabase.co
	APIKey     string // サービスロールキー
	HTTPClient *http.Client
}

// Client はオブジェクトストレージのクライアント。
type Client struct {
	config Config
	http   *http.Client
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: config, http: httpClient}
}

// Upload はオブジェクトをアップロードし、公開URLを返す。
// 同じパスが存在する場合は上書きする。
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, body []byte) (string, error) {
	endpoint := c.objectURL("object", bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseError(resp.StatusCode, raw)
	}

	return c.PublicURL(bucket, path), nil
}

// PublicURL は公開バケット内のオブジェクトのURLを返す。
func (c *Client) PublicURL(bucket, path string) string {
	return c.objectURL("object/public", bucket, path)
}

func (c *Client) objectURL(prefix, bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/storage/v1/" + prefix + "/" +
		url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// parseError はエラーレスポンスをerrorに変換する。
// バケットが存在しない場合はErrBucketNotFoundをラップする。
func parseError(status int, raw []byte) error {
	var body struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	if strings.Contains(strings.ToLower(msg), "bucket not found") ||
		(status == http.StatusNotFound && body.Error != "not_found") {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, msg)
	}
	return fmt.Errorf("storage upload failed (status %d): %s", status, msg)
}
