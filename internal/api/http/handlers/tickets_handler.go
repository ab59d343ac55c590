package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.CreateTicket(c.UserContext(), actor, req.Description, req.ServiceItemIDs)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(result)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	tickets, err := h.lifecycle.ListTickets(c.UserContext(), actor, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketFields(&tickets[i], true))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketFields(ticket, true)})
}

// ChangeStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.ChangeStatus(c.UserContext(), c.Params("id"), actor, req.Status, service.StatusPayload{
		ClosureDescription: req.ClosureDescription,
		Note:               req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(result)})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.ReopenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.ReopenTicket(c.UserContext(), c.Params("id"), actor, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(result)})
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CancelTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.CancelTicket(c.UserContext(), c.Params("id"), actor, req.Justification)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(result)})
}

// AssignTechnician PUT /tickets/:id/technician.
func (h *TicketsHandler) AssignTechnician(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.AssignTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TechnicianID == "" {
		return apperrors.NewValidationError("technician_id required", nil)
	}

	result, err := h.lifecycle.AssignTechnician(c.UserContext(), c.Params("id"), actor, req.TechnicianID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(result)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.AddComment(c.UserContext(), c.Params("id"), actor, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(result)})
}

// Delete DELETE /tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	if err := h.lifecycle.DeleteTicket(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	records, err := h.lifecycle.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.HistoryRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, historyRecordResponse(record))
	}
	return c.JSON(fiber.Map{"data": items})
}

func historyRecordResponse(record domain.HistoryRecord) dto.HistoryRecordResponse {
	return dto.HistoryRecordResponse{
		ID:          record.ID,
		Kind:        record.Kind,
		FromStatus:  record.FromStatus,
		ToStatus:    record.ToStatus,
		Description: record.Description,
		ActorID:     record.ActorID,
		ActorName:   record.ActorName,
		ActorEmail:  record.ActorEmail,
		OccurredAt:  record.OccurredAt,
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(result *service.TransitionResult) dto.TicketResponse {
	return ticketFields(result.Ticket, result.AuditRecorded)
}

func ticketFields(ticket *domain.Ticket, auditRecorded bool) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                 ticket.ID,
		Code:               ticket.Code,
		Description:        ticket.Description,
		Status:             ticket.Status,
		CreatorID:          ticket.CreatorID,
		TechnicianID:       ticket.TechnicianID,
		ServiceItemIDs:     ticket.ServiceItemIDs,
		CreatedAt:          ticket.CreatedAt,
		LastUpdatedAt:      ticket.LastUpdatedAt,
		ClosedAt:           ticket.ClosedAt,
		ClosureDescription: ticket.ClosureDescription,
		AuditRecorded:      auditRecorded,
	}
}
