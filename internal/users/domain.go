// Package users provides user account administration.
package users

import "time"

// User represents a user account for management.
type User struct {
	ID        string
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
