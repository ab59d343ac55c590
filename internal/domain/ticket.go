package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. Wire values keep the
// product's Portuguese vocabulary.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "ABERTO"
	TicketStatusInProgress TicketStatus = "EM_ATENDIMENTO"
	TicketStatusClosed     TicketStatus = "ENCERRADO"
	TicketStatusCancelled  TicketStatus = "CANCELADO"
	TicketStatusReopened   TicketStatus = "REABERTO"
)

// IsValid reports whether the status is a recognized lifecycle state.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed,
		TicketStatusCancelled, TicketStatusReopened:
		return true
	}
	return false
}

// Terminal reports whether the status carries a closedAt timestamp.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// Ticket is the aggregate tracked by the lifecycle engine.
type Ticket struct {
	ID                 string
	Code               string
	Description        string
	Status             TicketStatus
	CreatorID          string
	TechnicianID       *string
	ServiceItemIDs     []string
	CreatedAt          time.Time
	LastUpdatedAt      *time.Time
	ClosedAt           *time.Time
	ClosureDescription *string
}
