package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload for opening a ticket.
type CreateTicketRequest struct {
	Description    string   `json:"description"`
	ServiceItemIDs []string `json:"service_item_ids"`
}

// ChangeStatusRequest payload for a status transition.
type ChangeStatusRequest struct {
	Status             domain.TicketStatus `json:"status"`
	ClosureDescription string              `json:"closure_description"`
	Note               string              `json:"note"`
}

// ReopenTicketRequest payload for the reopen flow.
type ReopenTicketRequest struct {
	Note string `json:"note"`
}

// CancelTicketRequest payload for the cancellation flow.
type CancelTicketRequest struct {
	Justification string `json:"justification"`
}

// AssignTechnicianRequest payload for admin assignment.
type AssignTechnicianRequest struct {
	TechnicianID string `json:"technician_id"`
}

// AddCommentRequest payload for comments.
type AddCommentRequest struct {
	Body string `json:"body"`
}

// TicketResponse is the ticket representation returned by the API.
type TicketResponse struct {
	ID                 string              `json:"id"`
	Code               string              `json:"code"`
	Description        string              `json:"description"`
	Status             domain.TicketStatus `json:"status"`
	CreatorID          string              `json:"creator_id"`
	TechnicianID       *string             `json:"technician_id,omitempty"`
	ServiceItemIDs     []string            `json:"service_item_ids,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	LastUpdatedAt      *time.Time          `json:"last_updated_at,omitempty"`
	ClosedAt           *time.Time          `json:"closed_at,omitempty"`
	ClosureDescription *string             `json:"closure_description,omitempty"`
	AuditRecorded      bool                `json:"audit_recorded"`
}

// HistoryRecordResponse is a ledger record representation.
type HistoryRecordResponse struct {
	ID          string               `json:"id"`
	Kind        domain.HistoryKind   `json:"kind"`
	FromStatus  *domain.TicketStatus `json:"from_status,omitempty"`
	ToStatus    *domain.TicketStatus `json:"to_status,omitempty"`
	Description string               `json:"description"`
	ActorID     string               `json:"actor_id"`
	ActorName   string               `json:"actor_name"`
	ActorEmail  string               `json:"actor_email"`
	OccurredAt  time.Time            `json:"occurred_at"`
}
