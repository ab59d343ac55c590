package service

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// ResolvedTechnician is the identity recovered for a reopened ticket.
type ResolvedTechnician struct {
	ID    string
	Name  string
	Email string
}

// TechnicianResolver performs read-repair of a ticket's technician. The
// mutable aggregate is the primary source; when its technician field has
// been cleared, the most recent claim recorded in the ledger is adopted.
type TechnicianResolver struct {
	ledger repository.HistoryLedger
}

// NewTechnicianResolver constructs the resolver.
func NewTechnicianResolver(ledger repository.HistoryLedger) *TechnicianResolver {
	return &TechnicianResolver{ledger: ledger}
}

// Resolve returns the technician for the ticket, or nil when neither the
// aggregate nor the ledger knows one.
func (r *TechnicianResolver) Resolve(ctx context.Context, ticket *domain.Ticket) (*ResolvedTechnician, error) {
	if ticket.TechnicianID != nil {
		return &ResolvedTechnician{ID: *ticket.TechnicianID}, nil
	}

	record, err := r.ledger.LatestMatching(ctx, ticket.ID, func(rec domain.HistoryRecord) bool {
		return rec.Kind == domain.HistoryKindStatus &&
			rec.ToStatus != nil && *rec.ToStatus == domain.TicketStatusInProgress
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return &ResolvedTechnician{
		ID:    record.ActorID,
		Name:  record.ActorName,
		Email: record.ActorEmail,
	}, nil
}
