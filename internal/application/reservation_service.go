package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/adapters/paymentgw"
	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/reservation"
	"github.com/gearshare/service-reservation/internal/domain/shared"
	"github.com/gearshare/service-reservation/internal/events"
	"github.com/gearshare/service-reservation/internal/platform/kafka"
)

const eventSource = "service-reservation"

// SystemActorNickname is recorded on log entries written by the
// settlement consumer and the sweep worker rather than a user.
const SystemActorNickname = "system"

// CreateReservationRequest holds the data needed to create a reservation.
type CreateReservationRequest struct {
	ListingID       uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	ReceiveMethod   listing.HandoverMethod
	ReturnMethod    listing.HandoverMethod
	OptionIDs       []uuid.UUID
	DeliveryAddress string
}

// TransitionRequest is the caller-supplied input for one transition.
type TransitionRequest struct {
	TargetStatus   reservation.Status
	Reason         string
	Carrier        string
	TrackingNumber string
}

// ReservationDTO is the response representation of a reservation.
type ReservationDTO struct {
	ID                uuid.UUID                  `json:"id"`
	ListingID         uuid.UUID                  `json:"listing_id"`
	GuestID           uuid.UUID                  `json:"guest_id"`
	HostID            uuid.UUID                  `json:"host_id"`
	Status            string                     `json:"status"`
	ReceiveMethod     string                     `json:"receive_method"`
	ReturnMethod      string                     `json:"return_method"`
	PeriodStart       string                     `json:"period_start"`
	PeriodEnd         string                     `json:"period_end"`
	SelectedOptionIDs []uuid.UUID                `json:"selected_option_ids"`
	DeliveryAddress   string                     `json:"delivery_address,omitempty"`
	Quote             reservation.Quote          `json:"quote"`
	OutboundShipping  *reservation.ShippingInfo  `json:"outbound_shipping,omitempty"`
	ReturnShipping    *reservation.ShippingInfo  `json:"return_shipping,omitempty"`
	CancelReason      string                     `json:"cancel_reason,omitempty"`
	RejectReason      string                     `json:"reject_reason,omitempty"`
	ClaimReason       string                     `json:"claim_reason,omitempty"`
	HasReviewed       bool                       `json:"has_reviewed"`
	PaidAt            *time.Time                 `json:"paid_at,omitempty"`
	RentedAt          *time.Time                 `json:"rented_at,omitempty"`
	ReturnedAt        *time.Time                 `json:"returned_at,omitempty"`
	CancelledAt       *time.Time                 `json:"cancelled_at,omitempty"`
	Logs              []reservation.Log          `json:"logs"`
	AvailableActions  []string                   `json:"available_actions"`
	Version           int64                      `json:"version"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// ReservationService is the application service orchestrating the
// reservation lifecycle use cases.
type ReservationService struct {
	repo     reservation.Repository
	listings listing.Service
	payments paymentgw.Gateway
	calc     reservation.Calculator
	producer *kafka.Producer
	locks    *keyedMutex
	logger   *zap.Logger
}

// NewReservationService creates a new ReservationService.
func NewReservationService(
	repo reservation.Repository,
	listings listing.Service,
	payments paymentgw.Gateway,
	calc reservation.Calculator,
	producer *kafka.Producer,
	logger *zap.Logger,
) *ReservationService {
	return &ReservationService{
		repo:     repo,
		listings: listings,
		payments: payments,
		calc:     calc,
		producer: producer,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// CreateReservation validates the request, computes the initial quote
// and creates the reservation in pending_approval with its first log
// entry.
func (s *ReservationService) CreateReservation(ctx context.Context, guestID uuid.UUID, guestNickname string, req CreateReservationRequest) (*ReservationDTO, error) {
	snapshot, err := s.listings.GetPricing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	quote, err := s.calc.Quote(snapshot, req.OptionIDs, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	res, err := reservation.NewReservation(
		snapshot,
		guestID,
		guestNickname,
		req.PeriodStart,
		req.PeriodEnd,
		req.ReceiveMethod,
		req.ReturnMethod,
		req.OptionIDs,
		req.DeliveryAddress,
		quote,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	evt := events.ReservationRequestedEvent{
		ReservationID: res.ID(),
		ListingID:     res.ListingID(),
		GuestID:       res.GuestID(),
		HostID:        res.HostID(),
		PeriodStart:   res.PeriodStart(),
		PeriodEnd:     res.PeriodEnd(),
		TotalAmount:   quote.TotalAmount,
		Currency:      quote.Currency,
		OccurredAt:    time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TopicReservationEvents, events.ReservationRequested, evt)

	dto := toReservationDTO(res, guestID)
	return &dto, nil
}

// Transition is the single entry point for all lifecycle transitions
// except payment confirmation, which goes through ConfirmPayment so
// the gateway round-trip happens outside the per-reservation lock.
func (s *ReservationService) Transition(ctx context.Context, reservationID, actorID uuid.UUID, actorNickname string, req TransitionRequest) (*ReservationDTO, error) {
	if req.TargetStatus == reservation.StatusPendingPickup {
		return nil, shared.NewInvalidPayloadError("use the payment endpoint to confirm payment")
	}
	in := reservation.Input{
		Reason:         req.Reason,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
	}
	return s.applyLocked(ctx, reservationID, actorID, actorNickname, req.TargetStatus, in)
}

// ConfirmPayment drives pending_payment → pending_pickup. The gateway
// confirmation and the pricing recomputation run before the lock is
// taken; only the final state mutation holds it, so a slow gateway
// cannot stall other operations on the same reservation.
func (s *ReservationService) ConfirmPayment(ctx context.Context, reservationID, actorID uuid.UUID, actorNickname, token string) (*ReservationDTO, error) {
	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.ResolveRole(actorID) == reservation.RoleNeither {
		return nil, shared.NewUnauthorizedError("actor is neither guest nor host of this reservation")
	}
	if res.Status() != reservation.StatusPendingPayment {
		return nil, shared.NewInvalidTransitionError(string(res.Status()), string(reservation.StatusPendingPickup))
	}

	conf, err := s.payments.Confirm(ctx, token)
	if err != nil {
		return nil, err
	}

	// Recompute the quote from a fresh snapshot. If the listing price
	// changed between creation and payment the mismatch is reported,
	// never silently reconciled.
	snapshot, err := s.listings.GetPricing(ctx, res.ListingID())
	if err != nil {
		return nil, err
	}
	quote, err := s.calc.Quote(snapshot, res.SelectedOptionIDs(), res.PeriodStart(), res.PeriodEnd())
	if err != nil {
		return nil, err
	}
	if quote.TotalAmount != conf.Amount {
		return nil, shared.NewPricingMismatchError(quote.TotalAmount, conf.Amount)
	}

	in := reservation.Input{PaymentToken: token}
	return s.applyLocked(ctx, reservationID, actorID, actorNickname, reservation.StatusPendingPickup, in)
}

// applyLocked reloads the reservation under its per-id lock, applies
// the transition and persists the result atomically.
func (s *ReservationService) applyLocked(ctx context.Context, reservationID, actorID uuid.UUID, actorNickname string, target reservation.Status, in reservation.Input) (*ReservationDTO, error) {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	from := res.Status()
	if err := res.ApplyTransition(target, actorID, actorNickname, in); err != nil {
		return nil, err
	}

	res.IncrementVersion()
	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}

	evt := events.ReservationStatusChangedEvent{
		ReservationID: res.ID(),
		ListingID:     res.ListingID(),
		GuestID:       res.GuestID(),
		HostID:        res.HostID(),
		FromStatus:    string(from),
		ToStatus:      string(res.Status()),
		ActorID:       actorID,
		OccurredAt:    time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TopicReservationEvents, events.ReservationStatusChanged, evt)

	dto := toReservationDTO(res, actorID)
	return &dto, nil
}

// GetReservation retrieves a reservation with its full log trail.
// Only the guest or the host may read it.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID, actorID uuid.UUID) (*ReservationDTO, error) {
	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.ResolveRole(actorID) == reservation.RoleNeither {
		return nil, shared.NewUnauthorizedError("actor is neither guest nor host of this reservation")
	}
	dto := toReservationDTO(res, actorID)
	return &dto, nil
}

// ListAsGuest retrieves the caller's reservations as requester.
func (s *ReservationService) ListAsGuest(ctx context.Context, guestID uuid.UUID, status reservation.Status, page, limit int) (*shared.PaginatedResult[ReservationDTO], error) {
	items, total, err := s.repo.FindByGuestID(ctx, guestID, status, page, limit)
	if err != nil {
		return nil, err
	}
	return s.toPage(items, total, page, limit, guestID), nil
}

// ListAsHost retrieves the caller's reservations as listing owner.
func (s *ReservationService) ListAsHost(ctx context.Context, hostID uuid.UUID, status reservation.Status, page, limit int) (*shared.PaginatedResult[ReservationDTO], error) {
	items, total, err := s.repo.FindByHostID(ctx, hostID, status, page, limit)
	if err != nil {
		return nil, err
	}
	return s.toPage(items, total, page, limit, hostID), nil
}

// MarkReviewed records that the guest attached a review, exactly once.
func (s *ReservationService) MarkReviewed(ctx context.Context, reservationID, actorID uuid.UUID) (*ReservationDTO, error) {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := res.MarkReviewed(actorID); err != nil {
		return nil, err
	}
	res.IncrementVersion()
	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}
	dto := toReservationDTO(res, actorID)
	return &dto, nil
}

// CompleteRefund drives pending_refund → refund_completed on behalf of
// the settlement side, acting with the host's identity.
func (s *ReservationService) CompleteRefund(ctx context.Context, reservationID uuid.UUID) error {
	return s.systemTransition(ctx, reservationID, reservation.StatusRefundCompleted)
}

// CompleteClaim drives claiming → claim_completed on behalf of the
// settlement side, acting with the host's identity.
func (s *ReservationService) CompleteClaim(ctx context.Context, reservationID uuid.UUID) error {
	return s.systemTransition(ctx, reservationID, reservation.StatusClaimCompleted)
}

func (s *ReservationService) systemTransition(ctx context.Context, reservationID uuid.UUID, target reservation.Status) error {
	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}
	_, err = s.applyLocked(ctx, reservationID, res.HostID(), SystemActorNickname, target, reservation.Input{})
	return err
}

// SweepPendingRefunds completes refunds that have sat in pending_refund
// past the payout window. Returns the number of reservations advanced.
func (s *ReservationService) SweepPendingRefunds(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := s.repo.FindStaleByStatus(ctx, reservation.StatusPendingRefund, cutoff, limit)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, res := range stale {
		if err := s.CompleteRefund(ctx, res.ID()); err != nil {
			s.logger.Error("failed to complete refund during sweep",
				zap.String("reservation_id", res.ID().String()),
				zap.Error(err),
			)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// --- Admin methods ---

// ReservationStatsDTO holds reservation statistics for the admin dashboard.
type ReservationStatsDTO struct {
	TotalReservations int64            `json:"total_reservations"`
	ByStatus          map[string]int64 `json:"by_status"`
}

// ListAllReservations returns a paginated list of all reservations (admin).
func (s *ReservationService) ListAllReservations(ctx context.Context, page, limit int) ([]ReservationDTO, int64, error) {
	items, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}
	dtos := make([]ReservationDTO, len(items))
	for i, res := range items {
		dtos[i] = toReservationDTO(res, uuid.Nil)
	}
	return dtos, total, nil
}

// GetReservationStats returns aggregate reservation statistics (admin).
func (s *ReservationService) GetReservationStats(ctx context.Context) (*ReservationStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation stats: %w", err)
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	return &ReservationStatsDTO{TotalReservations: total, ByStatus: counts}, nil
}

// --- Helpers ---

func (s *ReservationService) toPage(items []*reservation.Reservation, total int64, page, limit int, viewerID uuid.UUID) *shared.PaginatedResult[ReservationDTO] {
	dtos := make([]ReservationDTO, len(items))
	for i, res := range items {
		dtos[i] = toReservationDTO(res, viewerID)
	}
	result := shared.NewPaginatedResult(dtos, total, page, limit)
	return &result
}

const dateLayout = "2006-01-02"

func toReservationDTO(res *reservation.Reservation, viewerID uuid.UUID) ReservationDTO {
	available := res.AvailableTransitions(viewerID)
	actions := make([]string, len(available))
	for i, st := range available {
		actions[i] = string(st)
	}

	return ReservationDTO{
		ID:                res.ID(),
		ListingID:         res.ListingID(),
		GuestID:           res.GuestID(),
		HostID:            res.HostID(),
		Status:            string(res.Status()),
		ReceiveMethod:     string(res.ReceiveMethod()),
		ReturnMethod:      string(res.ReturnMethod()),
		PeriodStart:       res.PeriodStart().Format(dateLayout),
		PeriodEnd:         res.PeriodEnd().Format(dateLayout),
		SelectedOptionIDs: res.SelectedOptionIDs(),
		DeliveryAddress:   res.DeliveryAddress(),
		Quote:             res.PricingQuote(),
		OutboundShipping:  res.OutboundShipping(),
		ReturnShipping:    res.ReturnShipping(),
		CancelReason:      res.CancelReason(),
		RejectReason:      res.RejectReason(),
		ClaimReason:       res.ClaimReason(),
		HasReviewed:       res.HasReviewed(),
		PaidAt:            res.PaidAt(),
		RentedAt:          res.RentedAt(),
		ReturnedAt:        res.ReturnedAt(),
		CancelledAt:       res.CancelledAt(),
		Logs:              res.Logs(),
		AvailableActions:  actions,
		Version:           res.Version(),
		CreatedAt:         res.CreatedAt(),
		UpdatedAt:         res.UpdatedAt(),
	}
}

func (s *ReservationService) publishEvent(ctx context.Context, topic, eventType string, data interface{}) {
	if s.producer == nil {
		return
	}
	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	if err := s.producer.PublishEvent(ctx, topic, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
