package reservation

import "github.com/google/uuid"

// Role is the resolved relationship between an acting user and a reservation.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleHost    Role = "host"
	RoleNeither Role = "neither"
)

// ResolveRole compares the actor against the reservation's parties.
// The host id is the denormalized copy resolved through the listing at
// creation time.
func ResolveRole(guestID, hostID, actorID uuid.UUID) Role {
	switch actorID {
	case guestID:
		return RoleGuest
	case hostID:
		return RoleHost
	}
	return RoleNeither
}
