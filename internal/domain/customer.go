package domain

import "time"

// Customer is a repair shop client owned by one team.
type Customer struct {
	ID        string
	TenantID  string
	TeamID    string
	Name      string
	Phone     string
	Email     string
	Address   string
	CreatedBy string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Customer) DocID() string     { return c.ID }
func (c *Customer) DocVersion() int64 { return c.Version }

// Scope returns the fields visibility predicates test.
func (c *Customer) Scope() Scope {
	return Scope{TenantID: c.TenantID, TeamID: c.TeamID, CreatedBy: c.CreatedBy}
}
