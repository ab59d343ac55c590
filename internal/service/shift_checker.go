package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// ShiftChecker decides whether a technician may claim a ticket right now.
// Windows are loaded fresh on every call since shift configuration may
// change between requests.
type ShiftChecker struct {
	shifts repository.ShiftRepository
	now    func() time.Time
}

// NewShiftChecker constructs the checker with the wall clock.
func NewShiftChecker(shifts repository.ShiftRepository) *ShiftChecker {
	return &ShiftChecker{shifts: shifts, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (c *ShiftChecker) WithClock(now func() time.Time) *ShiftChecker {
	c.now = now
	return c
}

// Check admits the technician when the current time-of-day falls inside at
// least one configured window. Both bounds are inclusive: starting exactly
// at the window's start or finishing exactly at its end still admits.
func (c *ShiftChecker) Check(ctx context.Context, technicianID string) error {
	windows, err := c.shifts.WindowsFor(ctx, technicianID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if len(windows) == 0 {
		return apperrors.NewForbidden("no shift configured for technician")
	}

	now := c.now()
	minuteOfDay := now.Hour()*60 + now.Minute()
	for _, window := range windows {
		if window.Contains(minuteOfDay) {
			return nil
		}
	}
	return apperrors.NewForbidden("outside shift hours")
}
