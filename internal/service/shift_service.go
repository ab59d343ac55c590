package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const minutesPerDay = 24 * 60

// ShiftService manages technician shift windows.
type ShiftService struct {
	shifts repository.ShiftRepository
	users  repository.UserRepository
}

// NewShiftService constructs the service.
func NewShiftService(shifts repository.ShiftRepository, users repository.UserRepository) *ShiftService {
	return &ShiftService{shifts: shifts, users: users}
}

// CreateWindow registers a work-hour window for a technician. Overnight
// windows are not supported; split shifts are expressed as several windows.
func (s *ShiftService) CreateWindow(ctx context.Context, technicianID string, startMinute, endMinute int) (*domain.ShiftWindow, error) {
	if startMinute < 0 || endMinute >= minutesPerDay {
		return nil, apperrors.NewValidationError("window bounds outside the day", nil)
	}
	if endMinute < startMinute {
		return nil, apperrors.NewValidationError("window end precedes its start", nil)
	}

	technician, err := s.users.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return nil, apperrors.MapError(err)
	}
	if technician.Role != domain.RoleTechnician {
		return nil, apperrors.NewValidationError("account is not a technician", map[string]any{"technician_id": technicianID})
	}

	window := &domain.ShiftWindow{
		TechnicianID: technicianID,
		StartMinute:  startMinute,
		EndMinute:    endMinute,
	}
	if err := s.shifts.Create(ctx, window); err != nil {
		return nil, apperrors.MapError(err)
	}
	return window, nil
}

// ListWindows returns all windows configured for a technician.
func (s *ShiftService) ListWindows(ctx context.Context, technicianID string) ([]domain.ShiftWindow, error) {
	windows, err := s.shifts.WindowsFor(ctx, technicianID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return windows, nil
}

// DeleteWindow removes a window.
func (s *ShiftService) DeleteWindow(ctx context.Context, id string) error {
	if err := s.shifts.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("shift window", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}
