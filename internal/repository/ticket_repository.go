package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrStatusChanged signals that a conditional status write found the ticket
// in a different state than the caller loaded. Lost races surface as
// conflicts instead of silent overwrites.
var ErrStatusChanged = errors.New("ticket status changed concurrently")

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// UpdateStatusFrom persists the lifecycle fields of ticket only if the
	// stored status still equals expected.
	UpdateStatusFrom(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	UpdateTechnician(ctx context.Context, ticketID string, technicianID *string, at time.Time) error
	TouchLastUpdated(ctx context.Context, ticketID string, at time.Time) error
	ListByCreator(ctx context.Context, creatorID string, limit, offset int) ([]domain.Ticket, error)
	ListByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (code, description, status, creator_id)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Code,
		ticket.Description,
		ticket.Status,
		ticket.CreatorID,
	).Scan(&ticket.ID, &ticket.CreatedAt); err != nil {
		return err
	}

	for _, serviceID := range ticket.ServiceItemIDs {
		const linkQuery = `INSERT INTO ticket_services (ticket_id, service_item_id) VALUES ($1,$2)`
		if _, err := tx.Exec(ctx, linkQuery, ticket.ID, serviceID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, code, description, status, creator_id, technician_id,
               created_at, last_updated_at, closed_at, closure_description
        FROM tickets WHERE id=$1`

	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Description,
		&ticket.Status,
		&ticket.CreatorID,
		&ticket.TechnicianID,
		&ticket.CreatedAt,
		&ticket.LastUpdatedAt,
		&ticket.ClosedAt,
		&ticket.ClosureDescription,
	); err != nil {
		return nil, err
	}

	serviceIDs, err := r.serviceItemIDs(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.ServiceItemIDs = serviceIDs
	return &ticket, nil
}

func (r *ticketRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM tickets WHERE code=$1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ticketRepository) UpdateStatusFrom(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, technician_id=$2, closed_at=$3,
            closure_description=$4, last_updated_at=$5
        WHERE id=$6 AND status=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.TechnicianID,
		ticket.ClosedAt,
		ticket.ClosureDescription,
		ticket.LastUpdatedAt,
		ticket.ID,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *ticketRepository) UpdateTechnician(ctx context.Context, ticketID string, technicianID *string, at time.Time) error {
	const query = `UPDATE tickets SET technician_id=$1, last_updated_at=$2 WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, technicianID, at, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) TouchLastUpdated(ctx context.Context, ticketID string, at time.Time) error {
	const query = `UPDATE tickets SET last_updated_at=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, at, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListByCreator(ctx context.Context, creatorID string, limit, offset int) ([]domain.Ticket, error) {
	const query = `
        SELECT id, code, description, status, creator_id, technician_id,
               created_at, last_updated_at, closed_at, closure_description
        FROM tickets WHERE creator_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, creatorID, normalizeLimit(limit), normalizeOffset(offset))
}

func (r *ticketRepository) ListByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]domain.Ticket, error) {
	const query = `
        SELECT id, code, description, status, creator_id, technician_id,
               created_at, last_updated_at, closed_at, closure_description
        FROM tickets WHERE technician_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, technicianID, normalizeLimit(limit), normalizeOffset(offset))
}

// Delete removes a ticket outright. Link rows go first to satisfy the
// foreign key; ledger records are left orphaned on purpose.
func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM ticket_services WHERE ticket_id=$1`, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Code,
			&ticket.Description,
			&ticket.Status,
			&ticket.CreatorID,
			&ticket.TechnicianID,
			&ticket.CreatedAt,
			&ticket.LastUpdatedAt,
			&ticket.ClosedAt,
			&ticket.ClosureDescription,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) serviceItemIDs(ctx context.Context, ticketID string) ([]string, error) {
	const query = `SELECT service_item_id FROM ticket_services WHERE ticket_id=$1`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
