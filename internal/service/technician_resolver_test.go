package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func claimRecord(id, ticketID, actorID, actorName string, at time.Time) *domain.HistoryRecord {
	from := domain.TicketStatusOpen
	to := domain.TicketStatusInProgress
	return &domain.HistoryRecord{
		ID: id, TicketID: ticketID, Kind: domain.HistoryKindStatus,
		FromStatus: &from, ToStatus: &to,
		ActorID: actorID, ActorName: actorName,
		OccurredAt: at,
	}
}

func TestResolvePrefersAggregateField(t *testing.T) {
	ledger := newFakeLedger()
	resolver := NewTechnicianResolver(ledger)
	technicianID := "t9"
	ticket := &domain.Ticket{ID: "ticket-1", TechnicianID: &technicianID}

	resolved, err := resolver.Resolve(context.Background(), ticket)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved == nil || resolved.ID != "t9" {
		t.Fatalf("expected aggregate technician, got %+v", resolved)
	}
}

func TestResolvePicksLatestClaimFromLedger(t *testing.T) {
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	_ = ledger.Append(context.Background(), claimRecord("r1", "ticket-1", "t1", "Bruno", base))
	_ = ledger.Append(context.Background(), claimRecord("r2", "ticket-1", "t2", "Diego", base.Add(time.Hour)))

	// A later non-claim record must not shadow the claim.
	to := domain.TicketStatusClosed
	_ = ledger.Append(context.Background(), &domain.HistoryRecord{
		ID: "r3", TicketID: "ticket-1", Kind: domain.HistoryKindStatus,
		ToStatus: &to, ActorID: "a1", OccurredAt: base.Add(2 * time.Hour),
	})

	resolver := NewTechnicianResolver(ledger)
	resolved, err := resolver.Resolve(context.Background(), &domain.Ticket{ID: "ticket-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved == nil || resolved.ID != "t2" || resolved.Name != "Diego" {
		t.Fatalf("expected latest claimer t2, got %+v", resolved)
	}
}

func TestResolveReturnsNilWithoutClaim(t *testing.T) {
	resolver := NewTechnicianResolver(newFakeLedger())
	resolved, err := resolver.Resolve(context.Background(), &domain.Ticket{ID: "ticket-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected nil, got %+v", resolved)
	}
}
