package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a payer record. Payments reference customers by id but do not own them.
type Customer struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Phone     *string
	Metadata  map[string]string
	CreatedAt time.Time
}
