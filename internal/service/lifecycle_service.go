package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const (
	reopenWindow     = 48 * time.Hour
	maxCodeAttempts  = 5
	ticketCodePrefix = "HD"
)

// recordIDNamespace anchors the deterministic ledger record ids.
var recordIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// LifecycleService is the ticket lifecycle engine: the transition guard,
// the cancellation and reopen policies, code generation and the ledger
// bookkeeping around them.
type LifecycleService struct {
	tickets  repository.TicketRepository
	catalog  repository.ServiceCatalogRepository
	users    repository.UserRepository
	ledger   repository.HistoryLedger
	shifts   *ShiftChecker
	resolver *TechnicianResolver

	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the engine.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	CatalogRepo repository.ServiceCatalogRepository
	UserRepo    repository.UserRepository
	Ledger      repository.HistoryLedger
	Shifts      *ShiftChecker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// StatusPayload carries the optional fields of a changeStatus request.
type StatusPayload struct {
	ClosureDescription string
	Note               string
}

// TransitionResult is the outcome of a successful lifecycle operation.
// AuditRecorded is false when the ticket mutation committed but the ledger
// append failed; the mutation is never rolled back for that.
type TransitionResult struct {
	Ticket        *domain.Ticket
	AuditRecorded bool
}

// NewLifecycleService constructs the engine.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		catalog:    deps.CatalogRepo,
		users:      deps.UserRepo,
		ledger:     deps.Ledger,
		shifts:     deps.Shifts,
		resolver:   NewTechnicianResolver(deps.Ledger),
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	if s.shifts != nil {
		s.shifts.WithClock(now)
	}
	return s
}

// CreateTicket opens a ticket for the creator. The human-facing code is
// generated with a bounded collision retry; nothing is written until a free
// code is found.
func (s *LifecycleService) CreateTicket(ctx context.Context, creator domain.Actor, description string, serviceItemIDs []string) (*TransitionResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewValidationError("description required", nil)
	}
	if err := s.validateServiceRefs(ctx, serviceItemIDs); err != nil {
		return nil, err
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Code:           code,
		Description:    description,
		Status:         domain.TicketStatusOpen,
		CreatorID:      creator.ID,
		ServiceItemIDs: serviceItemIDs,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	record := s.newRecord(ticket.ID, domain.HistoryKindCreation, nil, nil,
		"ticket opened", creator, ticket.CreatedAt)
	recorded := s.appendRecord(ctx, record)

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: creator.ID, Role: creator.Role},
		Payload: events.TicketCreatedPayload{
			Code:           ticket.Code,
			ServiceItemIDs: ticket.ServiceItemIDs,
		},
	})
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// ChangeStatus validates and applies a requested status change. Guard rules
// run in a fixed order; the first failing rule decides the rejection.
func (s *LifecycleService) ChangeStatus(ctx context.Context, ticketID string, actor domain.Actor, requested domain.TicketStatus, payload StatusPayload) (*TransitionResult, error) {
	if requested == "" || !requested.IsValid() {
		return nil, apperrors.NewValidationError("unrecognized status", map[string]any{"status": requested})
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Status == domain.TicketStatusCancelled {
		return nil, apperrors.NewConflict("cancelled ticket cannot be modified", nil)
	}
	if actor.Role == domain.RoleTechnician && ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewForbidden("closed tickets can only return through the reopen flow")
	}
	if actor.Role == domain.RoleTechnician && requested == domain.TicketStatusCancelled {
		return nil, apperrors.NewForbidden("technicians may not cancel tickets")
	}

	from := ticket.Status
	now := s.now()

	// A technician taking an open or reopened ticket into EM_ATENDIMENTO is
	// a claim: shift admission runs and the technician is self-assigned, so
	// the ticket never sits in EM_ATENDIMENTO without one.
	claiming := requested == domain.TicketStatusInProgress && actor.Role == domain.RoleTechnician &&
		(from == domain.TicketStatusOpen || from == domain.TicketStatusReopened)
	if claiming {
		if err := s.shifts.Check(ctx, actor.ID); err != nil {
			return nil, err
		}
		technicianID := actor.ID
		ticket.TechnicianID = &technicianID
	}

	closure := strings.TrimSpace(payload.ClosureDescription)
	if requested == domain.TicketStatusClosed && closure == "" {
		return nil, apperrors.NewValidationError("closure description required", nil)
	}

	ticket.Status = requested
	ticket.LastUpdatedAt = &now
	if requested.Terminal() {
		ticket.ClosedAt = &now
		if closure != "" {
			ticket.ClosureDescription = &closure
		}
	} else {
		// closedAt holds only for terminal states; the closure text is
		// retained for history.
		ticket.ClosedAt = nil
	}

	if err := s.tickets.UpdateStatusFrom(ctx, ticket, from); err != nil {
		return nil, mapStatusWriteError(err)
	}

	description := strings.TrimSpace(payload.Note)
	if description == "" {
		description = defaultStatusDescription(requested)
	}
	record := s.newRecord(ticket.ID, domain.HistoryKindStatus, &from, &requested, description, actor, now)
	recorded := s.appendRecord(ctx, record)

	s.publishStatusChanged(ctx, ticket.ID, actor, from, requested, description)
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// ReopenTicket returns a closed ticket to active work when requested by its
// creator within the allowed window.
func (s *LifecycleService) ReopenTicket(ctx context.Context, ticketID string, actor domain.Actor, note string) (*TransitionResult, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.CreatorID != actor.ID {
		return nil, apperrors.NewForbidden("only the ticket creator may reopen")
	}
	if ticket.Status != domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("only closed tickets can be reopened", map[string]any{"status": ticket.Status})
	}
	if ticket.ClosedAt == nil {
		return nil, apperrors.NewConflict("ticket is missing its closure timestamp", nil)
	}

	now := s.now()
	if now.Sub(*ticket.ClosedAt) > reopenWindow {
		return nil, apperrors.NewForbidden("reopen window expired")
	}

	resolved, err := s.resolver.Resolve(ctx, ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	from := ticket.Status
	ticket.Status = domain.TicketStatusReopened
	ticket.ClosedAt = nil
	ticket.LastUpdatedAt = &now
	if resolved != nil {
		technicianID := resolved.ID
		ticket.TechnicianID = &technicianID
	}

	if err := s.tickets.UpdateStatusFrom(ctx, ticket, from); err != nil {
		return nil, mapStatusWriteError(err)
	}

	description := strings.TrimSpace(note)
	if description == "" {
		description = "ticket reopened by the requester within the allowed window"
	}
	to := domain.TicketStatusReopened
	record := s.newRecord(ticket.ID, domain.HistoryKindStatus, &from, &to, description, actor, now)
	recorded := s.appendRecord(ctx, record)

	s.publishStatusChanged(ctx, ticket.ID, actor, from, to, description)
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// CancelTicket abandons a ticket through the dedicated, more restrictive
// flow: admins may cancel any eligible ticket, creators only their own,
// technicians never.
func (s *LifecycleService) CancelTicket(ctx context.Context, ticketID string, actor domain.Actor, justification string) (*TransitionResult, error) {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return nil, apperrors.NewValidationError("justification required", nil)
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewConflict("ticket is already closed or cancelled", map[string]any{"status": ticket.Status})
	}

	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleUser:
		if ticket.CreatorID != actor.ID {
			return nil, apperrors.NewForbidden("only the ticket creator may cancel")
		}
	default:
		return nil, apperrors.NewForbidden("technicians may not cancel tickets")
	}

	from := ticket.Status
	now := s.now()
	ticket.Status = domain.TicketStatusCancelled
	ticket.ClosedAt = &now
	ticket.ClosureDescription = &justification
	ticket.LastUpdatedAt = &now

	if err := s.tickets.UpdateStatusFrom(ctx, ticket, from); err != nil {
		return nil, mapStatusWriteError(err)
	}

	to := domain.TicketStatusCancelled
	record := s.newRecord(ticket.ID, domain.HistoryKindStatus, &from, &to, justification, actor, now)
	recorded := s.appendRecord(ctx, record)

	s.publishStatusChanged(ctx, ticket.ID, actor, from, to, justification)
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// AssignTechnician lets an admin set or replace the technician on a
// non-terminal ticket. Admission control only gates technicians claiming
// for themselves, so no shift check runs here.
func (s *LifecycleService) AssignTechnician(ctx context.Context, ticketID string, actor domain.Actor, technicianID string) (*TransitionResult, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only administrators may assign technicians")
	}

	technician, err := s.users.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return nil, apperrors.MapError(err)
	}
	if technician.Role != domain.RoleTechnician {
		return nil, apperrors.NewValidationError("assignee is not a technician", map[string]any{"technician_id": technicianID})
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewConflict("ticket is already closed or cancelled", map[string]any{"status": ticket.Status})
	}

	now := s.now()
	if err := s.tickets.UpdateTechnician(ctx, ticket.ID, &technician.ID, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.TechnicianID = &technician.ID
	ticket.LastUpdatedAt = &now

	record := s.newRecord(ticket.ID, domain.HistoryKindAssignment, nil, nil,
		fmt.Sprintf("ticket assigned to technician %s", technician.Name), actor, now)
	recorded := s.appendRecord(ctx, record)

	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Role: actor.Role},
		Payload:  events.TicketAssignedPayload{TechnicianID: ticket.TechnicianID},
	})
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// AddComment appends a comment record for an actor involved with the ticket.
func (s *LifecycleService) AddComment(ctx context.Context, ticketID string, actor domain.Actor, body string) (*TransitionResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body required", nil)
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusCancelled {
		return nil, apperrors.NewConflict("cancelled ticket cannot be modified", nil)
	}
	if !s.actorInvolved(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}

	now := s.now()
	if err := s.tickets.TouchLastUpdated(ctx, ticket.ID, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.LastUpdatedAt = &now

	record := s.newRecord(ticket.ID, domain.HistoryKindComment, nil, nil, body, actor, now)
	recorded := s.appendRecord(ctx, record)

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Role: actor.Role},
		Payload:  events.TicketCommentedPayload{BodyPreview: preview(body, 120)},
	})
	return &TransitionResult{Ticket: ticket, AuditRecorded: recorded}, nil
}

// DeleteTicket hard-deletes a ticket (admin only). Link rows go first;
// ledger records stay behind as an explicit retention choice.
func (s *LifecycleService) DeleteTicket(ctx context.Context, ticketID string, actor domain.Actor) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only administrators may delete tickets")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    events.Actor{ID: actor.ID, Role: actor.Role},
	})
	return nil
}

// GetTicket loads a ticket for an involved actor.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.actorInvolved(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListTickets returns tickets scoped to the actor: creators see their own,
// technicians the ones assigned to them.
func (s *LifecycleService) ListTickets(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Ticket, error) {
	var (
		tickets []domain.Ticket
		err     error
	)
	switch actor.Role {
	case domain.RoleTechnician:
		tickets, err = s.tickets.ListByTechnician(ctx, actor.ID, limit, offset)
	default:
		tickets, err = s.tickets.ListByCreator(ctx, actor.ID, limit, offset)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetHistory returns the ticket's ledger records in occurredAt order.
func (s *LifecycleService) GetHistory(ctx context.Context, ticketID string) ([]domain.HistoryRecord, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	records, err := s.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

func (s *LifecycleService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *LifecycleService) validateServiceRefs(ctx context.Context, serviceItemIDs []string) error {
	if len(serviceItemIDs) == 0 {
		return nil
	}
	items, err := s.catalog.GetByIDs(ctx, serviceItemIDs)
	if err != nil {
		return apperrors.MapError(err)
	}
	found := make(map[string]domain.ServiceItem, len(items))
	for _, item := range items {
		found[item.ID] = item
	}
	for _, id := range serviceItemIDs {
		item, ok := found[id]
		if !ok {
			return apperrors.NewNotFound("service item", map[string]any{"service_item_id": id})
		}
		if !item.Active {
			return apperrors.NewValidationError("service item inactive", map[string]any{"service_item_id": id})
		}
	}
	return nil
}

func (s *LifecycleService) generateCode(ctx context.Context) (string, error) {
	year := s.now().Year()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := fmt.Sprintf("%s-%d-%06d", ticketCodePrefix, year, rand.Intn(1000000))
		exists, err := s.tickets.CodeExists(ctx, code)
		if err != nil {
			return "", apperrors.MapError(err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", apperrors.NewConflict("could not generate a unique ticket code", nil)
}

// newRecord builds a ledger record with a deterministic id derived from the
// ticket, the transition and the operation timestamp, so a retried append
// after a partial failure rewrites the same record instead of duplicating.
func (s *LifecycleService) newRecord(ticketID string, kind domain.HistoryKind, from, to *domain.TicketStatus, description string, actor domain.Actor, occurredAt time.Time) *domain.HistoryRecord {
	seed := fmt.Sprintf("%s|%s|%s|%s|%d", ticketID, kind, statusOrEmpty(from), statusOrEmpty(to), occurredAt.UnixNano())
	return &domain.HistoryRecord{
		ID:          uuid.NewSHA1(recordIDNamespace, []byte(seed)).String(),
		TicketID:    ticketID,
		Kind:        kind,
		FromStatus:  from,
		ToStatus:    to,
		Description: description,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		ActorEmail:  actor.Email,
		OccurredAt:  occurredAt,
	}
}

// appendRecord writes to the ledger after the ticket store already
// committed. A failure here is logged and counted, never rolled back:
// a compensating write would be a second, separately fallible operation.
func (s *LifecycleService) appendRecord(ctx context.Context, record *domain.HistoryRecord) bool {
	if err := s.ledger.Append(ctx, record); err != nil {
		s.logger.Warn("history append failed; ticket mutated without audit record",
			zap.String("ticket_id", record.TicketID),
			zap.String("record_id", record.ID),
			zap.Error(err))
		s.metrics.RecordLedgerFailure()
		return false
	}
	return true
}

func (s *LifecycleService) actorInvolved(actor domain.Actor, ticket *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	if ticket.CreatorID == actor.ID {
		return true
	}
	if ticket.TechnicianID != nil && *ticket.TechnicianID == actor.ID {
		return true
	}
	return false
}

func (s *LifecycleService) publishStatusChanged(ctx context.Context, ticketID string, actor domain.Actor, from, to domain.TicketStatus, comment string) {
	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticketID,
		Actor:    events.Actor{ID: actor.ID, Role: actor.Role},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: to,
			Comment:   comment,
		},
	})
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapStatusWriteError(err error) error {
	if errors.Is(err, repository.ErrStatusChanged) {
		return apperrors.NewConflict("ticket changed concurrently", nil)
	}
	return apperrors.MapError(err)
}

func defaultStatusDescription(status domain.TicketStatus) string {
	switch status {
	case domain.TicketStatusInProgress:
		return "ticket assigned to the technician"
	case domain.TicketStatusClosed:
		return "ticket closed"
	case domain.TicketStatusCancelled:
		return "ticket cancelled"
	case domain.TicketStatusReopened:
		return "ticket reopened"
	default:
		return "ticket moved to open"
	}
}

func statusOrEmpty(status *domain.TicketStatus) string {
	if status == nil {
		return ""
	}
	return string(*status)
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
