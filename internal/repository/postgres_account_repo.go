package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

// PostgresAccountRepo はアカウント削除用のリポジトリ。
type PostgresAccountRepo struct {
	db TxBeginner
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db TxBeginner) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// DeleteUserData はユーザーに紐づく行を1トランザクションで削除する。
//
// 削除順序: 予約（本人の予約と、本人の掲載への予約） → 掲載3テーブル → service_providers →
// profiles → sessions。beforeCommitはすべての削除が成功した後、コミットの直前に呼ばれ、
// エラーを返した場合はロールバックする。
func (r *PostgresAccountRepo) DeleteUserData(ctx context.Context, userID uuid.UUID, beforeCommit func(ctx context.Context) error) (*model.DeletionSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	summary := &model.DeletionSummary{}

	var providerID uuid.NullUUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM service_providers WHERE user_id = $1`,
		userID,
	).Scan(&providerID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find service provider: %w", err)
	}

	bookingsQuery := `DELETE FROM bookings WHERE user_id = $1`
	bookingsArgs := []any{userID}
	if providerID.Valid {
		bookingsQuery += ` OR service_id IN (` + providerServiceIDs() + `)`
		bookingsArgs = append(bookingsArgs, providerID.UUID)
	}
	if summary.Bookings, err = execCount(ctx, tx, bookingsQuery, bookingsArgs...); err != nil {
		return nil, fmt.Errorf("failed to delete bookings: %w", err)
	}

	if providerID.Valid {
		for _, kind := range model.ServiceKinds() {
			n, err := execCount(ctx, tx, `DELETE FROM `+kind.Table()+` WHERE provider_id = $1`, providerID.UUID)
			if err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", kind.Table(), err)
			}
			summary.Listings += n
		}
	}

	if summary.Providers, err = execCount(ctx, tx, `DELETE FROM service_providers WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to delete service provider: %w", err)
	}
	if summary.Profiles, err = execCount(ctx, tx, `DELETE FROM profiles WHERE id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to delete profile: %w", err)
	}
	if summary.Sessions, err = execCount(ctx, tx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}

	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return summary, nil
}

// providerServiceIDs は事業者（$2）の全掲載IDを返すサブクエリ。
func providerServiceIDs() string {
	q := ""
	for i, kind := range model.ServiceKinds() {
		if i > 0 {
			q += " UNION ALL "
		}
		q += `SELECT id FROM ` + kind.Table() + ` WHERE provider_id = $2`
	}
	return q
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
