package reservation

import "fmt"

// Status represents the current state of a reservation in its lifecycle.
type Status string

const (
	// Request phase.
	StatusPendingApproval Status = "pending_approval"

	// Commitment phase.
	StatusPendingPayment Status = "pending_payment"
	StatusPendingPickup  Status = "pending_pickup"

	// Handover phase.
	StatusShipping         Status = "shipping"
	StatusInspectingRental Status = "inspecting_rental"

	// Active phase.
	StatusRenting Status = "renting"

	// Return phase.
	StatusPendingReturn    Status = "pending_return"
	StatusReturning        Status = "returning"
	StatusInspectingReturn Status = "inspecting_return"
	StatusReturnCompleted  Status = "return_completed"

	// Settlement phase.
	StatusPendingRefund   Status = "pending_refund"
	StatusRefundCompleted Status = "refund_completed"

	// Dispute phase.
	StatusLostOrUnreturned Status = "lost_or_unreturned"
	StatusClaiming         Status = "claiming"
	StatusClaimCompleted   Status = "claim_completed"

	// Terminal (non-dispute).
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var allStatuses = map[Status]struct{}{
	StatusPendingApproval:  {},
	StatusPendingPayment:   {},
	StatusPendingPickup:    {},
	StatusShipping:         {},
	StatusInspectingRental: {},
	StatusRenting:          {},
	StatusPendingReturn:    {},
	StatusReturning:        {},
	StatusInspectingReturn: {},
	StatusReturnCompleted:  {},
	StatusPendingRefund:    {},
	StatusRefundCompleted:  {},
	StatusLostOrUnreturned: {},
	StatusClaiming:         {},
	StatusClaimCompleted:   {},
	StatusRejected:         {},
	StatusCancelled:        {},
}

// IsValid returns true if the status is a recognized reservation status.
func (s Status) IsValid() bool {
	_, ok := allStatuses[s]
	return ok
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusRefundCompleted, StatusClaimCompleted:
		return true
	}
	return false
}

// ReviewableFrom reports whether review authoring is open at this status.
func (s Status) ReviewableFrom() bool {
	switch s {
	case StatusReturnCompleted, StatusPendingRefund, StatusRefundCompleted:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid reservation status: %s", s)
	}
	return status, nil
}
