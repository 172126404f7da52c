package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Log is one append-only audit entry per accepted transition. Status
// is the resulting status; entries are never updated or removed.
type Log struct {
	ID            uuid.UUID `json:"id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Seq           int       `json:"seq"`
	Status        Status    `json:"status"`
	ActorID       uuid.UUID `json:"actor_id"`
	ActorNickname string    `json:"actor_nickname"`
	CreatedAt     time.Time `json:"created_at"`
}
