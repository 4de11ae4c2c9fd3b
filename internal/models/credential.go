package models

import (
	"time"

	"github.com/google/uuid"
)

type Credential struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Name      string
	Email     string

	// Empty for federated-login-only credentials
	HashedPassword string

	IsFederated bool
	IsVerified  bool
}
