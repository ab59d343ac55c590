package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// ShiftsHandler manages shift window administration.
type ShiftsHandler struct {
	shifts *service.ShiftService
}

// NewShiftsHandler constructs handler.
func NewShiftsHandler(shiftService *service.ShiftService) *ShiftsHandler {
	return &ShiftsHandler{shifts: shiftService}
}

// Create POST /shifts.
func (h *ShiftsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateShiftWindowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TechnicianID == "" {
		return apperrors.NewValidationError("technician_id required", nil)
	}

	window, err := h.shifts.CreateWindow(c.UserContext(), req.TechnicianID, req.StartMinute, req.EndMinute)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": shiftWindowResponse(window)})
}

// ListForTechnician GET /technicians/:id/shifts.
func (h *ShiftsHandler) ListForTechnician(c *fiber.Ctx) error {
	windows, err := h.shifts.ListWindows(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ShiftWindowResponse, 0, len(windows))
	for i := range windows {
		items = append(items, shiftWindowResponse(&windows[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Delete DELETE /shifts/:id.
func (h *ShiftsHandler) Delete(c *fiber.Ctx) error {
	if err := h.shifts.DeleteWindow(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func shiftWindowResponse(window *domain.ShiftWindow) dto.ShiftWindowResponse {
	return dto.ShiftWindowResponse{
		ID:           window.ID,
		TechnicianID: window.TechnicianID,
		StartMinute:  window.StartMinute,
		EndMinute:    window.EndMinute,
	}
}
