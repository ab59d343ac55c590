package domain

// ShiftWindow is a technician work-hour interval expressed as minutes since
// midnight. A technician may own several windows (split shifts); both bounds
// are inclusive for admission checks.
type ShiftWindow struct {
	ID           string
	TechnicianID string
	StartMinute  int
	EndMinute    int
}

// Contains reports whether the given minute-of-day falls inside the window.
func (w ShiftWindow) Contains(minuteOfDay int) bool {
	return minuteOfDay >= w.StartMinute && minuteOfDay <= w.EndMinute
}
