package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

// PostgresProviderRepo はPostgreSQLを使用した事業者プロフィールリポジトリ。
type PostgresProviderRepo struct {
	db *sql.DB
}

// NewPostgresProviderRepo はPostgresProviderRepoを生成する。
func NewPostgresProviderRepo(db *sql.DB) *PostgresProviderRepo {
	return &PostgresProviderRepo{db: db}
}

// FindByUserID はユーザーの事業者プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProviderRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error) {
	p := &model.ServiceProvider{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, business_name, description, address, phone, created_at, updated_at
		 FROM service_providers WHERE user_id = $1`,
		userID,
	).Scan(&p.ID, &p.UserID, &p.BusinessName, &p.Description, &p.Address, &p.Phone, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service provider: %w", err)
	}
	return p, nil
}

// Upsert は事業者プロフィールを作成または更新する。
func (r *PostgresProviderRepo) Upsert(ctx context.Context, p *model.ServiceProvider) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_providers (id, user_id, business_name, description, address, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		   business_name = EXCLUDED.business_name,
		   description = EXCLUDED.description,
		   address = EXCLUDED.address,
		   phone = EXCLUDED.phone,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserID, p.BusinessName, p.Description, p.Address, p.Phone, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service provider: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProviderRepository = (*PostgresProviderRepo)(nil)
