package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for reservation aggregates.
type Repository interface {
	// FindByID retrieves a reservation with its full log trail.
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// FindByGuestID retrieves a guest's reservations with pagination,
	// optionally filtered by status (empty means all).
	FindByGuestID(ctx context.Context, guestID uuid.UUID, status Status, page, limit int) ([]*Reservation, int64, error)

	// FindByHostID retrieves a host's reservations with pagination,
	// optionally filtered by status (empty means all).
	FindByHostID(ctx context.Context, hostID uuid.UUID, status Status, page, limit int) ([]*Reservation, int64, error)

	// FindStaleByStatus retrieves reservations that entered the given
	// status before the cutoff (for reconciliation sweeps).
	FindStaleByStatus(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Reservation, error)

	// ListAll retrieves all reservations with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Reservation, int64, error)

	// CountByStatus returns reservation counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new reservation together with its first log entry.
	Save(ctx context.Context, r *Reservation) error

	// Update persists changes to an existing reservation with
	// optimistic locking and appends any new log entries atomically.
	Update(ctx context.Context, r *Reservation) error
}
