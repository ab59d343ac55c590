package dto

// CreateShiftWindowRequest payload for registering a work-hour window.
// Bounds are minutes since midnight, both inclusive.
type CreateShiftWindowRequest struct {
	TechnicianID string `json:"technician_id"`
	StartMinute  int    `json:"start_minute"`
	EndMinute    int    `json:"end_minute"`
}

// ShiftWindowResponse is a window representation.
type ShiftWindowResponse struct {
	ID           string `json:"id"`
	TechnicianID string `json:"technician_id"`
	StartMinute  int    `json:"start_minute"`
	EndMinute    int    `json:"end_minute"`
}
