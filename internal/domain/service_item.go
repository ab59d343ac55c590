package domain

import "time"

// ServiceItem is a catalog entry a ticket may reference. Catalog management
// lives elsewhere; the engine only reads items and maintains link rows.
type ServiceItem struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}
