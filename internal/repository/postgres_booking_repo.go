package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	db *sql.DB
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db *sql.DB) *PostgresBookingRepo {
	return &PostgresBookingRepo{db: db}
}

// Create は予約を作成する。同じ日時の予約が既にあっても作成する。
func (r *PostgresBookingRepo) Create(ctx context.Context, b *model.Booking) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (id, user_id, service_id, service_type, booking_date, booking_time,
		   pet_name, notes, total_price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.UserID, b.ListingID, b.Kind, b.Date, b.Time,
		b.PetName, b.Notes, b.TotalPrice, b.Status, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの予約を新しい順に返す。
func (r *PostgresBookingRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, service_id, service_type,
		   to_char(booking_date, 'YYYY-MM-DD'), to_char(booking_time, 'HH24:MI'),
		   pet_name, notes, total_price, status, created_at
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		b := &model.Booking{}
		var kind, status string
		if err := rows.Scan(&b.ID, &b.UserID, &b.ListingID, &kind, &b.Date, &b.Time,
			&b.PetName, &b.Notes, &b.TotalPrice, &status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.Kind = model.ServiceKind(kind)
		b.Status = model.BookingStatus(status)
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
