package services

import "github.com/nyambika/marketplace/internal/models"

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool    { return a.Role == models.RoleAdmin }
func (a Actor) IsProducer() bool { return a.Role == models.RoleProducer }
