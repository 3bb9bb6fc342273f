package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is the stable identity anchor for results. Never mutated after
// creation; deletion does not cascade to results.
type Person struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}
