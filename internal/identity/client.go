// Package identity はホスティング型IDプロバイダー（GoTrue互換REST API）のクライアントを提供する。
//
// サインアップ、パスワードによるサインイン、トークンのリフレッシュ、
// PKCEによるOAuthコード交換、サインアウト、ユーザー取得、管理APIによるユーザー削除を扱う。
package identity

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

	"github.com/google/uuid"
	"github.com/hitoshi/smartpaw/internal/model"
)

// Config はIDプロバイダークライアントの設定。
type Config struct {
	BaseURL        string // 例: https://xyz.supabase.co
	AnonKey        string // 公開APIキー
	ServiceRoleKey string // 管理API用キー（サーバー側のみ）
	JWTSecret      string // アクセストークン検証用（空の場合はローカル検証しない）

	HTTPClient *http.Client
}

// Client はIDプロバイダーのRESTクライアント。
type Client struct {
	config Config
	http   *http.Client
	now    func() time.Time
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		config: config,
		http:   httpClient,
		now:    time.Now,
	}
}

// ProviderError はIDプロバイダーが返したエラー。
// Messageはプロバイダーのメッセージをそのまま保持する。
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error (status %d): %s", e.Status, e.Message)
}

// ErrNoSession はセッションが存在しない場合のエラー。
var ErrNoSession = errors.New("no active session")

// SignUpResult はサインアップの結果。
// メール確認が必要な場合、Sessionはnilになる。
type SignUpResult struct {
	User    *model.User
	Session *model.Session
}

// sessionResponse はトークン発行系エンドポイントのレスポンス。
type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

// userPayload はユーザーオブジェクトのレスポンス。
type userPayload struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	UserMetadata model.UserMetadata `json:"user_metadata"`
}

// errorResponse はエラーレスポンス。エンドポイントやバージョンによりフィールド名が異なる。
type errorResponse struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignUp はメールアドレスとパスワードでアカウントを作成する。
// メタデータはuser_metadataとして保存される。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata model.UserMetadata) (*SignUpResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}

	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, c.config.AnonKey, body)
	if err != nil {
		return nil, err
	}

	// 自動確認が有効な場合はセッション、そうでない場合はユーザーオブジェクトのみが返る
	var resp struct {
		sessionResponse
		userPayload
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse signup response: %w", err)
	}

	if resp.AccessToken != "" {
		session, err := c.toSession(&resp.sessionResponse)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{User: session.User, Session: session}, nil
	}

	user, err := toUser(&resp.userPayload)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: user}, nil
}

// SignInWithPassword はメールアドレスとパスワードでセッションを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return c.token(ctx, "password", map[string]any{
		"email":    email,
		"password": password,
	})
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	return c.token(ctx, "refresh_token", map[string]any{
		"refresh_token": refreshToken,
	})
}

// ExchangeCode はOAuth認可コードとPKCEのcode_verifierをセッションに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*model.Session, error) {
	return c.token(ctx, "pkce", map[string]any{
		"auth_code":     code,
		"code_verifier": verifier,
	})
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrNoSession
	}
	_, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil)
	return err
}

// GetUser はアクセストークンの持ち主のユーザー情報を取得する。
// 期限切れ・失効済みトークンの場合はProviderError（401）を返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	raw, err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var payload userPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return toUser(&payload)
}

// DeleteUser は管理APIでユーザーを削除する。
// 既に存在しない場合（404）は成功として扱う。
func (c *Client) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	_, err := c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+userID.String(), nil, c.config.ServiceRoleKey, nil)
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// AuthorizeURL は外部IdP（例: google）でのサインインを開始するURLを生成する。
// challengeはPKCEのS256コードチャレンジ。
func (c *Client) AuthorizeURL(provider, redirectTo, challenge string) string {
	params := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {challenge},
		"code_challenge_method": {"s256"},
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/auth/v1/authorize?" + params.Encode()
}

// token は/auth/v1/tokenエンドポイントを呼び出してセッションを取得する。
func (c *Client) token(ctx context.Context, grantType string, body map[string]any) (*model.Session, error) {
	query := url.Values{"grant_type": {grantType}}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, c.config.AnonKey, body)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	return c.toSession(&resp)
}

// do はAPIリクエストを送信し、2xxの場合はレスポンスボディを返す。
// bearerはAuthorizationヘッダーに設定するトークン。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body any) ([]byte, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.config.AnonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, raw)
	}

	return raw, nil
}

// parseError はエラーレスポンスをProviderErrorに変換する。
func parseError(status int, raw []byte) *ProviderError {
	perr := &ProviderError{Status: status}

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		perr.Message = strings.TrimSpace(string(raw))
		if perr.Message == "" {
			perr.Message = http.StatusText(status)
		}
		return perr
	}

	perr.Code = firstNonEmpty(body.ErrorCode, body.Error)
	perr.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.Error, http.StatusText(status))
	return perr
}

// toSession はトークンレスポンスをSessionに変換する。
func (c *Client) toSession(resp *sessionResponse) (*model.Session, error) {
	if resp.User == nil {
		return nil, fmt.Errorf("missing user in token response")
	}
	user, err := toUser(resp.User)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		expiresAt = c.now().Add(time.Hour)
	}

	return &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// toUser はユーザーレスポンスをUserに変換する。
func toUser(p *userPayload) (*model.User, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", p.ID, err)
	}
	return &model.User{
		ID:       id,
		Email:    p.Email,
		Metadata: p.UserMetadata,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
