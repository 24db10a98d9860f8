// Package grants manages direct resource grants: access issued to one
// principal for one specific resource instance, independent of role.
package grants

import "time"

// Grant is an administrable direct resource grant row.
type Grant struct {
	ID           string
	UserID       string
	ResourceType string
	ResourceID   string
	Actions      []string
	Conditions   map[string]any
	GrantedBy    string
	GrantedAt    time.Time
	ExpiresAt    *time.Time
	IsActive     bool
}
