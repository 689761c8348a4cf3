package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/smartpaw/internal/model"
)

// ErrInvalidToken はアクセストークンの検証に失敗した場合のエラー。
var ErrInvalidToken = errors.New("invalid access token")

// AccessClaims はIDプロバイダーが発行するアクセストークンのクレーム。
type AccessClaims struct {
	Email        string             `json:"email"`
	Role         string             `json:"role"`
	UserMetadata model.UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// ParseAccessToken はHS256で署名されたアクセストークンを検証し、クレームを返す。
// JWTSecretが未設定の場合は検証できないためErrInvalidTokenを返す。
func (c *Client) ParseAccessToken(token string) (*AccessClaims, error) {
	if c.config.JWTSecret == "" {
		return nil, fmt.Errorf("%w: jwt secret is not configured", ErrInvalidToken)
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(c.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAccessToken はアクセストークンの持ち主を返す。
// JWTSecretが設定されていればローカルで検証し、未設定の場合は/auth/v1/userに問い合わせる。
func (c *Client) VerifyAccessToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	if c.config.JWTSecret == "" {
		return c.GetUser(ctx, token)
	}

	claims, err := c.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject: %v", ErrInvalidToken, err)
	}

	return &model.User{
		ID:       id,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}, nil
}
