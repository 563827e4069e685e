package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wheres-my-table/internal/domain"
)

// Tables reads table snapshots for the assignment engine and persists
// confirmed reservations. The engine itself never touches storage.
type Tables interface {
	ListTables(ctx context.Context) ([]domain.Table, error)
	GetTable(ctx context.Context, id string) (domain.Table, bool, error)
	SetTableStatus(ctx context.Context, id string, status domain.TableStatus) error
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, bool, error)
	SetReservationStatus(ctx context.Context, id string, status domain.ReservationStatus) error
}

type TablesPG struct {
	pool *pgxpool.Pool
}

func NewTablesPG(pool *pgxpool.Pool) *TablesPG { return &TablesPG{pool: pool} }

func (r *TablesPG) ListTables(ctx context.Context) ([]domain.Table, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, capacity, status, location, shape, features, pos_x, pos_y
		FROM tables
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	return tables, nil
}

func (r *TablesPG) GetTable(ctx context.Context, id string) (domain.Table, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, capacity, status, location, shape, features, pos_x, pos_y
		FROM tables
		WHERE id = $1
	`, id)
	if err != nil {
		return domain.Table{}, false, fmt.Errorf("failed to get table %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.Table{}, false, rows.Err()
	}
	t, err := scanTable(rows)
	if err != nil {
		return domain.Table{}, false, err
	}
	return t, true, nil
}

func scanTable(rows pgx.Rows) (domain.Table, error) {
	var (
		t          domain.Table
		posX, posY *float64
	)
	if err := rows.Scan(&t.ID, &t.Capacity, &t.Status, &t.Location, &t.Shape, &t.Features, &posX, &posY); err != nil {
		return domain.Table{}, fmt.Errorf("failed to scan table: %w", err)
	}
	if posX != nil && posY != nil {
		t.Position = &domain.Position{X: *posX, Y: *posY}
	}
	return t, nil
}

func (r *TablesPG) SetTableStatus(ctx context.Context, id string, status domain.TableStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tables SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update table %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s not found", id)
	}
	return nil
}

// CreateReservation inserts the reservation, marks the table reserved and
// logs the transition, all in one transaction.
func (r *TablesPG) CreateReservation(ctx context.Context, res domain.Reservation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations
		    (id, table_id, guest_count, reserved_date, time_slot, occasion, special_requests, status, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, res.ID, res.TableID, res.GuestCount, res.Date, res.TimeSlot, res.Occasion, res.SpecialRequests, res.Status)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE tables SET status = $2, updated_at = NOW() WHERE id = $1
	`, res.TableID, domain.TableReserved)
	if err != nil {
		return fmt.Errorf("failed to reserve table %s: %w", res.TableID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservation_status_log (reservation_id, status, changed_by, changed_at)
		VALUES ($1, $2, 'reservation-service', NOW())
	`, res.ID, res.Status)
	if err != nil {
		return fmt.Errorf("failed to insert reservation status log: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *TablesPG) GetReservation(ctx context.Context, id string) (domain.Reservation, bool, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, table_id, guest_count, reserved_date, time_slot, occasion, special_requests, status, created_at
		FROM reservations
		WHERE id = $1
	`, id).Scan(&res.ID, &res.TableID, &res.GuestCount, &res.Date, &res.TimeSlot,
		&res.Occasion, &res.SpecialRequests, &res.Status, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}
	return res, true, nil
}

func (r *TablesPG) SetReservationStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reservations SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s not found", id)
	}
	return nil
}
