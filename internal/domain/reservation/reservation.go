package reservation

import (
	"time"

	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/shared"
	"github.com/google/uuid"
)

// ShippingInfo is a carrier/tracking pair for one delivery leg.
type ShippingInfo struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// Reservation is the aggregate root for the reservation domain. Its
// status is mutated only through ApplyTransition; the logs slice is
// append-only and the current status always equals the last entry's.
type Reservation struct {
	id        uuid.UUID
	listingID uuid.UUID
	guestID   uuid.UUID
	hostID    uuid.UUID

	status        Status
	receiveMethod listing.HandoverMethod
	returnMethod  listing.HandoverMethod

	periodStart time.Time
	periodEnd   time.Time

	selectedOptionIDs []uuid.UUID
	deliveryAddress   string

	quote Quote

	outboundShipping *ShippingInfo
	returnShipping   *ShippingInfo

	cancelReason string
	rejectReason string
	claimReason  string

	hasReviewed bool

	paidAt      *time.Time
	rentedAt    *time.Time
	returnedAt  *time.Time
	cancelledAt *time.Time

	logs []Log

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewReservation creates a reservation in pending_approval with its
// first log entry. The handover methods are fixed here for the life of
// the reservation; an empty requested method falls back to the
// listing policy's default.
func NewReservation(
	snapshot *listing.PricingSnapshot,
	guestID uuid.UUID,
	guestNickname string,
	periodStart, periodEnd time.Time,
	receiveMethod, returnMethod listing.HandoverMethod,
	optionIDs []uuid.UUID,
	deliveryAddress string,
	quote Quote,
) (*Reservation, error) {
	if guestID == uuid.Nil {
		return nil, shared.NewValidationError("guest ID is required")
	}
	if snapshot.OwnerID == uuid.Nil {
		return nil, shared.NewValidationError("listing owner ID is required")
	}
	if guestID == snapshot.OwnerID {
		return nil, shared.NewValidationError("a host cannot reserve their own listing")
	}

	startDay := TruncateToDay(periodStart)
	endDay := TruncateToDay(periodEnd)
	if !endDay.After(startDay) {
		return nil, shared.NewValidationError("period end must be after period start")
	}
	if startDay.Before(TruncateToDay(time.Now())) {
		return nil, shared.NewValidationError("period start must not be in the past")
	}

	if receiveMethod == "" {
		receiveMethod = snapshot.ReceiveMethod.Default()
	}
	if returnMethod == "" {
		returnMethod = snapshot.ReturnMethod.Default()
	}
	if !snapshot.ReceiveMethod.Allows(receiveMethod) {
		return nil, shared.NewValidationError("listing does not support the requested pickup method")
	}
	if !snapshot.ReturnMethod.Allows(returnMethod) {
		return nil, shared.NewValidationError("listing does not support the requested return method")
	}
	if receiveMethod == listing.MethodDelivery && deliveryAddress == "" {
		return nil, shared.NewValidationError("delivery address is required for delivery pickup")
	}
	if err := ValidateOptionSelection(snapshot, optionIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &Reservation{
		id:                uuid.New(),
		listingID:         snapshot.ListingID,
		guestID:           guestID,
		hostID:            snapshot.OwnerID,
		status:            StatusPendingApproval,
		receiveMethod:     receiveMethod,
		returnMethod:      returnMethod,
		periodStart:       startDay,
		periodEnd:         endDay,
		selectedOptionIDs: append([]uuid.UUID(nil), optionIDs...),
		deliveryAddress:   deliveryAddress,
		quote:             quote,
		version:           1,
		createdAt:         now,
		updatedAt:         now,
	}
	r.appendLog(StatusPendingApproval, guestID, guestNickname, now)
	return r, nil
}

// ReconstructReservation rebuilds a Reservation from persistence data (no validation).
func ReconstructReservation(
	id, listingID, guestID, hostID uuid.UUID,
	status Status,
	receiveMethod, returnMethod listing.HandoverMethod,
	periodStart, periodEnd time.Time,
	selectedOptionIDs []uuid.UUID,
	deliveryAddress string,
	quote Quote,
	outboundShipping, returnShipping *ShippingInfo,
	cancelReason, rejectReason, claimReason string,
	hasReviewed bool,
	paidAt, rentedAt, returnedAt, cancelledAt *time.Time,
	logs []Log,
	version int64,
	createdAt, updatedAt time.Time,
) *Reservation {
	return &Reservation{
		id:                id,
		listingID:         listingID,
		guestID:           guestID,
		hostID:            hostID,
		status:            status,
		receiveMethod:     receiveMethod,
		returnMethod:      returnMethod,
		periodStart:       periodStart,
		periodEnd:         periodEnd,
		selectedOptionIDs: selectedOptionIDs,
		deliveryAddress:   deliveryAddress,
		quote:             quote,
		outboundShipping:  outboundShipping,
		returnShipping:    returnShipping,
		cancelReason:      cancelReason,
		rejectReason:      rejectReason,
		claimReason:       claimReason,
		hasReviewed:       hasReviewed,
		paidAt:            paidAt,
		rentedAt:          rentedAt,
		returnedAt:        returnedAt,
		cancelledAt:       cancelledAt,
		logs:              logs,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// --- Getters ---

// ID returns the reservation's unique identifier.
func (r *Reservation) ID() uuid.UUID { return r.id }

// ListingID returns the reserved listing's identifier.
func (r *Reservation) ListingID() uuid.UUID { return r.listingID }

// GuestID returns the requesting user's identifier.
func (r *Reservation) GuestID() uuid.UUID { return r.guestID }

// HostID returns the listing owner's identifier.
func (r *Reservation) HostID() uuid.UUID { return r.hostID }

// Status returns the current reservation status.
func (r *Reservation) Status() Status { return r.status }

// ReceiveMethod returns the fixed pickup handover method.
func (r *Reservation) ReceiveMethod() listing.HandoverMethod { return r.receiveMethod }

// ReturnMethod returns the fixed return handover method.
func (r *Reservation) ReturnMethod() listing.HandoverMethod { return r.returnMethod }

// PeriodStart returns the first rental day (UTC midnight).
func (r *Reservation) PeriodStart() time.Time { return r.periodStart }

// PeriodEnd returns the last rental day (UTC midnight).
func (r *Reservation) PeriodEnd() time.Time { return r.periodEnd }

// SelectedOptionIDs returns the selected listing option references.
func (r *Reservation) SelectedOptionIDs() []uuid.UUID { return r.selectedOptionIDs }

// DeliveryAddress returns the delivery address, if any.
func (r *Reservation) DeliveryAddress() string { return r.deliveryAddress }

// PricingQuote returns the quote computed at creation time.
func (r *Reservation) PricingQuote() Quote { return r.quote }

// OutboundShipping returns the host→guest shipping leg, or nil.
func (r *Reservation) OutboundShipping() *ShippingInfo { return r.outboundShipping }

// ReturnShipping returns the guest→host shipping leg, or nil.
func (r *Reservation) ReturnShipping() *ShippingInfo { return r.returnShipping }

// CancelReason returns the cancellation reason, if any.
func (r *Reservation) CancelReason() string { return r.cancelReason }

// RejectReason returns the rejection reason, if any.
func (r *Reservation) RejectReason() string { return r.rejectReason }

// ClaimReason returns the claim reason, if any.
func (r *Reservation) ClaimReason() string { return r.claimReason }

// HasReviewed returns true once a review has been attached.
func (r *Reservation) HasReviewed() bool { return r.hasReviewed }

// PaidAt returns the payment confirmation time, or nil.
func (r *Reservation) PaidAt() *time.Time { return r.paidAt }

// RentedAt returns the time the rental went active, or nil.
func (r *Reservation) RentedAt() *time.Time { return r.rentedAt }

// ReturnedAt returns the time the return completed, or nil.
func (r *Reservation) ReturnedAt() *time.Time { return r.returnedAt }

// CancelledAt returns the cancellation time, or nil.
func (r *Reservation) CancelledAt() *time.Time { return r.cancelledAt }

// Logs returns the append-only audit trail, oldest first.
func (r *Reservation) Logs() []Log { return r.logs }

// Version returns the entity version for optimistic locking.
func (r *Reservation) Version() int64 { return r.version }

// CreatedAt returns the creation timestamp.
func (r *Reservation) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (r *Reservation) UpdatedAt() time.Time { return r.updatedAt }

// ResolveRole resolves an acting user against the reservation's parties.
func (r *Reservation) ResolveRole(actorID uuid.UUID) Role {
	return ResolveRole(r.guestID, r.hostID, actorID)
}

// AvailableTransitions enumerates the target statuses the actor may
// legally request right now.
func (r *Reservation) AvailableTransitions(actorID uuid.UUID) []Status {
	return AvailableTransitions(r.status, r.ResolveRole(actorID), r.receiveMethod, r.returnMethod)
}

// --- Behavior ---

// ApplyTransition validates and applies one lifecycle transition.
// Checks run in a fixed order so callers get the most specific error:
// actor identity, table lookup, role constraint, method guard, payload.
// On any failure the reservation and its logs are left untouched.
func (r *Reservation) ApplyTransition(to Status, actorID uuid.UUID, actorNickname string, in Input) error {
	role := r.ResolveRole(actorID)
	if role == RoleNeither {
		return shared.NewUnauthorizedError("actor is neither guest nor host of this reservation")
	}

	rule, ok := LookupRule(r.status, to)
	if !ok {
		return shared.NewInvalidTransitionError(string(r.status), string(to))
	}
	if !rule.Actor.Permits(role) {
		return shared.NewForbiddenError("this transition is not available to the " + string(role))
	}
	if err := checkMethodGuard(rule.Guard, r.receiveMethod, r.returnMethod); err != nil {
		return err
	}
	if err := validateInput(rule.Payload, in); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.applyEffects(rule, to, in, now)
	r.status = to
	r.appendLog(to, actorID, actorNickname, now)
	r.updatedAt = now
	return nil
}

// applyEffects persists the transition's payload fields and timestamps
// onto the aggregate.
func (r *Reservation) applyEffects(rule Rule, to Status, in Input, now time.Time) {
	switch rule.Payload {
	case payloadCancelReason:
		r.cancelReason = in.Reason
	case payloadRejectReason:
		r.rejectReason = in.Reason
	case payloadClaimReason:
		r.claimReason = in.Reason
	case payloadShipping:
		info := &ShippingInfo{Carrier: in.Carrier, TrackingNumber: in.TrackingNumber}
		if to == StatusShipping {
			r.outboundShipping = info
		} else {
			r.returnShipping = info
		}
	}

	switch to {
	case StatusPendingPickup:
		r.paidAt = &now
	case StatusRenting:
		r.rentedAt = &now
	case StatusReturnCompleted:
		r.returnedAt = &now
	case StatusCancelled:
		r.cancelledAt = &now
	}
}

// MarkReviewed sets the reviewed flag exactly once. Review authoring
// opens when the return has completed and stays open through refund.
func (r *Reservation) MarkReviewed(actorID uuid.UUID) error {
	role := r.ResolveRole(actorID)
	if role == RoleNeither {
		return shared.NewUnauthorizedError("actor is neither guest nor host of this reservation")
	}
	if role != RoleGuest {
		return shared.NewForbiddenError("only the guest may attach a review")
	}
	if !r.status.ReviewableFrom() {
		return shared.NewValidationError("review authoring is not open in status " + string(r.status))
	}
	if r.hasReviewed {
		return shared.NewConflictError("reservation has already been reviewed")
	}
	r.hasReviewed = true
	r.updatedAt = time.Now().UTC()
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (r *Reservation) IncrementVersion() {
	r.version++
	r.updatedAt = time.Now().UTC()
}

// appendLog appends an audit entry with a timestamp clamped to be
// non-decreasing relative to the previous entry.
func (r *Reservation) appendLog(status Status, actorID uuid.UUID, actorNickname string, at time.Time) {
	if n := len(r.logs); n > 0 && at.Before(r.logs[n-1].CreatedAt) {
		at = r.logs[n-1].CreatedAt
	}
	r.logs = append(r.logs, Log{
		ID:            uuid.New(),
		ReservationID: r.id,
		Seq:           len(r.logs) + 1,
		Status:        status,
		ActorID:       actorID,
		ActorNickname: actorNickname,
		CreatedAt:     at,
	})
}
