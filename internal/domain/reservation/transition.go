package reservation

import (
	"strings"

	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/shared"
)

// ActorConstraint restricts which party may request a transition.
type ActorConstraint string

const (
	actorGuest  ActorConstraint = "guest"
	actorHost   ActorConstraint = "host"
	actorEither ActorConstraint = "either"
)

// Permits reports whether the resolved role satisfies the constraint.
func (a ActorConstraint) Permits(role Role) bool {
	switch a {
	case actorEither:
		return role == RoleGuest || role == RoleHost
	case actorGuest:
		return role == RoleGuest
	case actorHost:
		return role == RoleHost
	}
	return false
}

// MethodGuard conditions a transition on the reservation's fixed
// receive or return handover method.
type MethodGuard string

const (
	guardNone            MethodGuard = ""
	guardReceiveDirect   MethodGuard = "receive_direct"
	guardReceiveDelivery MethodGuard = "receive_delivery"
	guardReturnDirect    MethodGuard = "return_direct"
	guardReturnDelivery  MethodGuard = "return_delivery"
)

// PayloadKind names the required input for a transition.
type PayloadKind string

const (
	payloadNone         PayloadKind = ""
	payloadCancelReason PayloadKind = "cancel_reason"
	payloadRejectReason PayloadKind = "reject_reason"
	payloadClaimReason  PayloadKind = "claim_reason"
	payloadShipping     PayloadKind = "shipping"
	payloadPayment      PayloadKind = "payment"
)

// Input carries the caller-supplied fields a transition may require.
type Input struct {
	Reason         string
	Carrier        string
	TrackingNumber string
	PaymentToken   string
}

// Rule is a single allowed edge of the reservation lifecycle.
type Rule struct {
	From    Status
	To      Status
	Actor   ActorConstraint
	Guard   MethodGuard
	Payload PayloadKind
}

// transitionTable is the single source of truth for transition
// legality. Every guard the UI used to duplicate lives on one row here.
var transitionTable = []Rule{
	// Request phase.
	{From: StatusPendingApproval, To: StatusPendingPayment, Actor: actorHost},
	{From: StatusPendingApproval, To: StatusRejected, Actor: actorHost, Payload: payloadRejectReason},
	{From: StatusPendingApproval, To: StatusCancelled, Actor: actorGuest, Payload: payloadCancelReason},

	// Commitment phase.
	{From: StatusPendingPayment, To: StatusPendingPickup, Actor: actorGuest, Payload: payloadPayment},
	{From: StatusPendingPayment, To: StatusCancelled, Actor: actorGuest, Payload: payloadCancelReason},
	{From: StatusPendingPickup, To: StatusShipping, Actor: actorHost, Guard: guardReceiveDelivery, Payload: payloadShipping},
	{From: StatusPendingPickup, To: StatusInspectingRental, Actor: actorGuest, Guard: guardReceiveDirect},
	{From: StatusPendingPickup, To: StatusCancelled, Actor: actorGuest, Payload: payloadCancelReason},

	// Handover phase.
	{From: StatusShipping, To: StatusInspectingRental, Actor: actorGuest},
	{From: StatusInspectingRental, To: StatusRenting, Actor: actorGuest},
	// Inspection-time cancellation still requires a physical return,
	// so it routes through the return phase instead of a generic cancel.
	{From: StatusInspectingRental, To: StatusPendingReturn, Actor: actorGuest, Payload: payloadCancelReason},

	// Active phase.
	{From: StatusRenting, To: StatusPendingReturn, Actor: actorGuest},
	{From: StatusRenting, To: StatusLostOrUnreturned, Actor: actorHost},

	// Return phase.
	{From: StatusPendingReturn, To: StatusReturning, Actor: actorGuest, Guard: guardReturnDelivery, Payload: payloadShipping},
	{From: StatusPendingReturn, To: StatusInspectingReturn, Actor: actorHost, Guard: guardReturnDirect},
	{From: StatusReturning, To: StatusInspectingReturn, Actor: actorHost},
	{From: StatusInspectingReturn, To: StatusReturnCompleted, Actor: actorHost},
	{From: StatusInspectingReturn, To: StatusClaiming, Actor: actorHost, Payload: payloadClaimReason},

	// Settlement phase.
	{From: StatusReturnCompleted, To: StatusPendingRefund, Actor: actorEither},
	{From: StatusPendingRefund, To: StatusRefundCompleted, Actor: actorHost},

	// Dispute phase.
	{From: StatusLostOrUnreturned, To: StatusClaiming, Actor: actorHost, Payload: payloadClaimReason},
	{From: StatusClaiming, To: StatusClaimCompleted, Actor: actorHost},
}

type edge struct {
	from Status
	to   Status
}

var transitionIndex = func() map[edge]Rule {
	idx := make(map[edge]Rule, len(transitionTable))
	for _, r := range transitionTable {
		idx[edge{r.From, r.To}] = r
	}
	return idx
}()

// LookupRule finds the table row for a from→to pair.
func LookupRule(from, to Status) (Rule, bool) {
	r, ok := transitionIndex[edge{from, to}]
	return r, ok
}

// AvailableTransitions enumerates the target statuses the given role
// may legally request from the current status, given the reservation's
// fixed handover methods. The UI renders this set verbatim.
func AvailableTransitions(from Status, role Role, receive, ret listing.HandoverMethod) []Status {
	var targets []Status
	for _, r := range transitionTable {
		if r.From != from {
			continue
		}
		if !r.Actor.Permits(role) {
			continue
		}
		if err := checkMethodGuard(r.Guard, receive, ret); err != nil {
			continue
		}
		targets = append(targets, r.To)
	}
	return targets
}

// checkMethodGuard evaluates a rule's guard against the reservation's
// fixed handover methods.
func checkMethodGuard(g MethodGuard, receive, ret listing.HandoverMethod) error {
	switch g {
	case guardNone:
		return nil
	case guardReceiveDirect:
		if receive != listing.MethodDirect {
			return shared.NewMethodMismatchError("transition requires direct pickup")
		}
	case guardReceiveDelivery:
		if receive != listing.MethodDelivery {
			return shared.NewMethodMismatchError("transition requires delivery pickup")
		}
	case guardReturnDirect:
		if ret != listing.MethodDirect {
			return shared.NewMethodMismatchError("transition requires direct return")
		}
	case guardReturnDelivery:
		if ret != listing.MethodDelivery {
			return shared.NewMethodMismatchError("transition requires delivery return")
		}
	}
	return nil
}

// validateInput checks the required payload fields for a rule.
// Reason text must be non-empty after trimming; shipping requires both
// carrier and tracking number.
func validateInput(kind PayloadKind, in Input) error {
	switch kind {
	case payloadNone:
		return nil
	case payloadCancelReason:
		if strings.TrimSpace(in.Reason) == "" {
			return shared.NewInvalidPayloadError("cancel reason is required")
		}
	case payloadRejectReason:
		if strings.TrimSpace(in.Reason) == "" {
			return shared.NewInvalidPayloadError("reject reason is required")
		}
	case payloadClaimReason:
		if strings.TrimSpace(in.Reason) == "" {
			return shared.NewInvalidPayloadError("claim reason is required")
		}
	case payloadShipping:
		if strings.TrimSpace(in.Carrier) == "" || strings.TrimSpace(in.TrackingNumber) == "" {
			return shared.NewInvalidPayloadError("carrier and tracking number are required")
		}
	case payloadPayment:
		if strings.TrimSpace(in.PaymentToken) == "" {
			return shared.NewInvalidPayloadError("payment confirmation token is required")
		}
	}
	return nil
}
