package domain

import "time"

// HistoryKind captures what a ledger record describes.
type HistoryKind string

const (
	HistoryKindCreation   HistoryKind = "CREATION"
	HistoryKindAssignment HistoryKind = "ASSIGNMENT"
	HistoryKindStatus     HistoryKind = "STATUS"
	HistoryKindComment    HistoryKind = "COMMENT"
	HistoryKindReopen     HistoryKind = "REOPEN"
)

// HistoryRecord is an immutable ledger entry. Records are append-only and
// ordered by OccurredAt; the ledger doubles as the source of truth of last
// resort when a mutable ticket field has been cleared.
type HistoryRecord struct {
	ID          string        `json:"id"`
	TicketID    string        `json:"ticket_id"`
	Kind        HistoryKind   `json:"kind"`
	FromStatus  *TicketStatus `json:"from_status,omitempty"`
	ToStatus    *TicketStatus `json:"to_status,omitempty"`
	Description string        `json:"description"`
	ActorID     string        `json:"actor_id"`
	ActorName   string        `json:"actor_name"`
	ActorEmail  string        `json:"actor_email"`
	OccurredAt  time.Time     `json:"occurred_at"`
}
