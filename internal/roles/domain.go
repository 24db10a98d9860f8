// Package roles manages the two role catalogs, the permission catalog, and
// user-role assignments.
package roles

import "time"

// Role is a domain-scoped role from the current schema.
type Role struct {
	ID          string
	Name        string
	DisplayName string
	Domain      string
	Level       string
	Metadata    map[string]any
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppRole is a legacy application-scoped role. The legacy catalog stays
// readable during the migration window; both catalogs feed principal context
// building.
type AppRole struct {
	ID          string
	Name        string
	DisplayName string
	Application string
	Level       string
	Metadata    map[string]any
	IsActive    bool
	CreatedAt   time.Time
}

// Permission is an atomic capability, globally unique per
// (resource type, action) pair.
type Permission struct {
	ID           string
	ResourceType string
	Action       string
	Description  string
}

// Key returns the permission's natural key.
func (p Permission) Key() string {
	return p.ResourceType + ":" + p.Action
}

// Assignment links a user to a role with the shared validity rule.
type Assignment struct {
	UserID     string
	RoleID     string
	AssignedBy string
	AssignedAt time.Time
	ExpiresAt  *time.Time
	IsActive   bool
}
