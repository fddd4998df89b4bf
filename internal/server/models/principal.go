package models

// Principal is an already-authenticated human caller, consumed for the
// lifetime of one request. Produced by the Authenticator; never persisted.
type Principal struct {
	SubjectID string
	Name      string
	Username  string
	Email     string
	Groups    []string
	TenantID  string
}

// Identity returns the value jobs are attributed to: email when present,
// otherwise the username.
func (p *Principal) Identity() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Username
}
