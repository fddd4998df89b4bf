// Package models defines server-side data models persisted in the database.
package models

import "time"

// Server is a catalogued backup target host. Servers are never hard-deleted;
// decommissioning flips IsActive so that jobs referencing the DNS name keep
// their history.
type Server struct {
	ID        string
	Name      string
	DNS       string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
