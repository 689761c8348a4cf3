package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

const listingColumns = `id, provider_id, title, description, price, address, image_url, created_at, updated_at`

// PostgresListingRepo はPostgreSQLを使用した掲載リポジトリ。
// テーブル名はmodel.ServiceKind.Tableの固定値からのみ組み立てる。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

func tableFor(kind model.ServiceKind) (string, error) {
	table := kind.Table()
	if table == "" {
		return "", fmt.Errorf("unknown service kind: %q", kind)
	}
	return table, nil
}

// Create は掲載を作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, l *model.Listing) error {
	table, err := tableFor(l.Kind)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (`+listingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.ProviderID, l.Title, l.Description, l.Price, l.Address, l.ImageURL, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// FindByID は指定種別・IDの掲載を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{Kind: kind}
	err = r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM `+table+` WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.ProviderID, &l.Title, &l.Description, &l.Price, &l.Address, &l.ImageURL, &l.CreatedAt, &l.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return l, nil
}

// ListByKind は指定種別の掲載を新しい順に返す。
func (r *PostgresListingRepo) ListByKind(ctx context.Context, kind model.ServiceKind, limit int) ([]*model.Listing, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT '`+string(kind)+`', `+listingColumns+` FROM `+table+`
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// ListByProvider は事業者の全種別の掲載を新しい順に返す。
func (r *PostgresListingRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Listing, error) {
	parts := make([]string, 0, len(model.ServiceKinds()))
	for _, kind := range model.ServiceKinds() {
		parts = append(parts, `SELECT '`+string(kind)+`' AS kind, `+listingColumns+` FROM `+kind.Table()+` WHERE provider_id = $1`)
	}

	rows, err := r.db.QueryContext(ctx,
		strings.Join(parts, " UNION ALL ")+` ORDER BY created_at DESC`,
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// scanListings は種別列を先頭に持つ行を読み取る。
func scanListings(rows *sql.Rows) ([]*model.Listing, error) {
	listings := []*model.Listing{}
	for rows.Next() {
		l := &model.Listing{}
		var kind string
		if err := rows.Scan(&kind, &l.ID, &l.ProviderID, &l.Title, &l.Description, &l.Price,
			&l.Address, &l.ImageURL, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l.Kind = model.ServiceKind(kind)
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return listings, nil
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)
