package models

import "time"

// Database is a logical database registered under a server. The name is
// unique per server, compared case-insensitively. A database may be inactive
// while its server stays active.
type Database struct {
	ID        string
	ServerID  string
	DBName    string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
