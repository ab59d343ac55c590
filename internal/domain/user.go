package domain

import "time"

// User is an account that can authenticate against the service. End users,
// technicians and administrators share the table, distinguished by Role.
// Accounts are soft-deleted (DeletedAt), unlike tickets which are removed
// outright.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}
