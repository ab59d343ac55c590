package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ShiftRepository stores technician work-hour windows.
type ShiftRepository interface {
	Create(ctx context.Context, window *domain.ShiftWindow) error
	WindowsFor(ctx context.Context, technicianID string) ([]domain.ShiftWindow, error)
	Delete(ctx context.Context, id string) error
}

type shiftRepository struct {
	pool *pgxpool.Pool
}

// NewShiftRepository builds repository.
func NewShiftRepository(pool *pgxpool.Pool) ShiftRepository {
	return &shiftRepository{pool: pool}
}

func (r *shiftRepository) Create(ctx context.Context, window *domain.ShiftWindow) error {
	const query = `
        INSERT INTO shift_windows (technician_id, start_minute, end_minute)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		window.TechnicianID,
		window.StartMinute,
		window.EndMinute,
	).Scan(&window.ID)
}

func (r *shiftRepository) WindowsFor(ctx context.Context, technicianID string) ([]domain.ShiftWindow, error) {
	const query = `
        SELECT id, technician_id, start_minute, end_minute
        FROM shift_windows WHERE technician_id=$1
        ORDER BY start_minute ASC`
	rows, err := r.pool.Query(ctx, query, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ShiftWindow
	for rows.Next() {
		var window domain.ShiftWindow
		if err := rows.Scan(
			&window.ID,
			&window.TechnicianID,
			&window.StartMinute,
			&window.EndMinute,
		); err != nil {
			return nil, err
		}
		result = append(result, window)
	}
	return result, rows.Err()
}

func (r *shiftRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM shift_windows WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
