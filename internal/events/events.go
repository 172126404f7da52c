package events

import (
	"time"

	"github.com/google/uuid"
)

// Kafka topics.
const (
	TopicReservationEvents = "reservation.events"
	TopicSettlementEvents  = "settlement.events"
)

// Event types on reservation.events.
const (
	ReservationRequested     = "reservation.requested"
	ReservationStatusChanged = "reservation.status_changed"
)

// Event types on settlement.events, produced by the reconciliation side.
const (
	SettlementRefundCompleted = "settlement.refund_completed"
	SettlementClaimSettled    = "settlement.claim_settled"
)

// ReservationRequestedEvent is published when a guest creates a reservation.
type ReservationRequestedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ListingID     uuid.UUID `json:"listing_id"`
	GuestID       uuid.UUID `json:"guest_id"`
	HostID        uuid.UUID `json:"host_id"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	TotalAmount   int64     `json:"total_amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationStatusChangedEvent is published once per accepted transition.
type ReservationStatusChangedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ListingID     uuid.UUID `json:"listing_id"`
	GuestID       uuid.UUID `json:"guest_id"`
	HostID        uuid.UUID `json:"host_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ActorID       uuid.UUID `json:"actor_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RefundCompletedEvent signals that the gateway finished paying out a refund.
type RefundCompletedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	RefundID      uuid.UUID `json:"refund_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ClaimSettledEvent signals that a dispute claim reached resolution.
type ClaimSettledEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ClaimID       uuid.UUID `json:"claim_id"`
	PayoutAmount  int64     `json:"payout_amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}
