package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/adapters/paymentgw"
	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/reservation"
	"github.com/gearshare/service-reservation/internal/domain/shared"
)

// fakeReservationRepository is an in-memory reservation.Repository with
// the same optimistic-locking semantics as the GORM implementation.
type fakeReservationRepository struct {
	mu    sync.Mutex
	store map[uuid.UUID]*reservation.Reservation
}

func newFakeReservationRepository() *fakeReservationRepository {
	return &fakeReservationRepository{store: make(map[uuid.UUID]*reservation.Reservation)}
}

// cloneReservation returns an independent copy so callers cannot mutate
// stored state without going through Update.
func cloneReservation(r *reservation.Reservation) *reservation.Reservation {
	logs := append([]reservation.Log(nil), r.Logs()...)
	optionIDs := append([]uuid.UUID(nil), r.SelectedOptionIDs()...)
	return reservation.ReconstructReservation(
		r.ID(), r.ListingID(), r.GuestID(), r.HostID(),
		r.Status(),
		r.ReceiveMethod(), r.ReturnMethod(),
		r.PeriodStart(), r.PeriodEnd(),
		optionIDs,
		r.DeliveryAddress(),
		r.PricingQuote(),
		r.OutboundShipping(), r.ReturnShipping(),
		r.CancelReason(), r.RejectReason(), r.ClaimReason(),
		r.HasReviewed(),
		r.PaidAt(), r.RentedAt(), r.ReturnedAt(), r.CancelledAt(),
		logs,
		r.Version(),
		r.CreatedAt(), r.UpdatedAt(),
	)
}

func (f *fakeReservationRepository) FindByID(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.store[id]
	if !ok {
		return nil, shared.NewNotFoundError("reservation", id.String())
	}
	return cloneReservation(r), nil
}

func (f *fakeReservationRepository) FindByGuestID(_ context.Context, guestID uuid.UUID, status reservation.Status, _, _ int) ([]*reservation.Reservation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reservation.Reservation
	for _, r := range f.store {
		if r.GuestID() != guestID {
			continue
		}
		if status != "" && r.Status() != status {
			continue
		}
		out = append(out, cloneReservation(r))
	}
	return out, int64(len(out)), nil
}

func (f *fakeReservationRepository) FindByHostID(_ context.Context, hostID uuid.UUID, status reservation.Status, _, _ int) ([]*reservation.Reservation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reservation.Reservation
	for _, r := range f.store {
		if r.HostID() != hostID {
			continue
		}
		if status != "" && r.Status() != status {
			continue
		}
		out = append(out, cloneReservation(r))
	}
	return out, int64(len(out)), nil
}

func (f *fakeReservationRepository) FindStaleByStatus(_ context.Context, status reservation.Status, cutoff time.Time, limit int) ([]*reservation.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reservation.Reservation
	for _, r := range f.store {
		if r.Status() != status || !r.UpdatedAt().Before(cutoff) {
			continue
		}
		out = append(out, cloneReservation(r))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeReservationRepository) ListAll(_ context.Context, _, _ int) ([]*reservation.Reservation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reservation.Reservation
	for _, r := range f.store {
		out = append(out, cloneReservation(r))
	}
	return out, int64(len(out)), nil
}

func (f *fakeReservationRepository) CountByStatus(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, r := range f.store {
		counts[string(r.Status())]++
	}
	return counts, nil
}

func (f *fakeReservationRepository) Save(_ context.Context, r *reservation.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.store[r.ID()]; exists {
		return shared.NewConflictError("reservation already exists")
	}
	f.store[r.ID()] = cloneReservation(r)
	return nil
}

func (f *fakeReservationRepository) Update(_ context.Context, r *reservation.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.store[r.ID()]
	if !ok {
		return shared.NewNotFoundError("reservation", r.ID().String())
	}
	if current.Version() != r.Version()-1 {
		return shared.NewConflictError("reservation was modified by another transaction")
	}
	f.store[r.ID()] = cloneReservation(r)
	return nil
}

// fakeListingService serves a fixed snapshot.
type fakeListingService struct {
	snapshot *listing.PricingSnapshot
}

func (f *fakeListingService) GetPricing(_ context.Context, _ uuid.UUID) (*listing.PricingSnapshot, error) {
	return f.snapshot, nil
}

// fakePaymentGateway returns a canned confirmation or error.
type fakePaymentGateway struct {
	conf paymentgw.Confirmation
	err  error
}

func (f *fakePaymentGateway) Confirm(_ context.Context, _ string) (paymentgw.Confirmation, error) {
	if f.err != nil {
		return paymentgw.Confirmation{}, f.err
	}
	return f.conf, nil
}

func serviceSnapshot() *listing.PricingSnapshot {
	return &listing.PricingSnapshot{
		ListingID:     uuid.New(),
		OwnerID:       uuid.New(),
		OwnerNickname: "lender",
		Fee:           10000,
		Deposit:       5000,
		Currency:      "KRW",
		ReceiveMethod: listing.PolicyEither,
		ReturnMethod:  listing.PolicyEither,
	}
}

func newTestService(repo *fakeReservationRepository, snapshot *listing.PricingSnapshot, gateway *fakePaymentGateway) *ReservationService {
	return NewReservationService(
		repo,
		&fakeListingService{snapshot: snapshot},
		gateway,
		reservation.NewStandardCalculator(),
		nil, // no producer in unit tests
		zap.NewNop(),
	)
}

func createTestReservation(t *testing.T, svc *ReservationService, guestID uuid.UUID) *ReservationDTO {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 0, 7)
	dto, err := svc.CreateReservation(context.Background(), guestID, "renter", CreateReservationRequest{
		ListingID:     uuid.New(),
		PeriodStart:   start,
		PeriodEnd:     start.AddDate(0, 0, 2),
		ReceiveMethod: listing.MethodDirect,
		ReturnMethod:  listing.MethodDirect,
	})
	require.NoError(t, err)
	return dto
}

func TestCreateReservation(t *testing.T) {
	repo := newFakeReservationRepository()
	snapshot := serviceSnapshot()
	svc := newTestService(repo, snapshot, &fakePaymentGateway{})
	guestID := uuid.New()

	dto := createTestReservation(t, svc, guestID)

	assert.Equal(t, "pending_approval", dto.Status)
	assert.Equal(t, snapshot.OwnerID, dto.HostID)
	assert.Equal(t, int64(35000), dto.Quote.TotalAmount)
	require.Len(t, dto.Logs, 1)
	assert.Equal(t, []string{"cancelled"}, dto.AvailableActions)

	stored, err := repo.FindByID(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPendingApproval, stored.Status())
}

func TestTransition_RejectsPaymentTarget(t *testing.T) {
	repo := newFakeReservationRepository()
	svc := newTestService(repo, serviceSnapshot(), &fakePaymentGateway{})
	dto := createTestReservation(t, svc, uuid.New())

	_, err := svc.Transition(context.Background(), dto.ID, dto.GuestID, "renter", TransitionRequest{
		TargetStatus: reservation.StatusPendingPickup,
	})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindInvalidPayload))
}

func TestTransition_HostApproves(t *testing.T) {
	repo := newFakeReservationRepository()
	snapshot := serviceSnapshot()
	svc := newTestService(repo, snapshot, &fakePaymentGateway{})
	dto := createTestReservation(t, svc, uuid.New())

	updated, err := svc.Transition(context.Background(), dto.ID, snapshot.OwnerID, "lender", TransitionRequest{
		TargetStatus: reservation.StatusPendingPayment,
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_payment", updated.Status)
	assert.Equal(t, int64(2), updated.Version)
	require.Len(t, updated.Logs, 2)
}

func TestConfirmPayment(t *testing.T) {
	setup := func(t *testing.T, gateway *fakePaymentGateway) (*ReservationService, *ReservationDTO, *listing.PricingSnapshot) {
		repo := newFakeReservationRepository()
		snapshot := serviceSnapshot()
		svc := newTestService(repo, snapshot, gateway)
		dto := createTestReservation(t, svc, uuid.New())
		_, err := svc.Transition(context.Background(), dto.ID, snapshot.OwnerID, "lender", TransitionRequest{
			TargetStatus: reservation.StatusPendingPayment,
		})
		require.NoError(t, err)
		return svc, dto, snapshot
	}

	t.Run("happy path", func(t *testing.T) {
		gateway := &fakePaymentGateway{conf: paymentgw.Confirmation{Success: true, Amount: 35000, Receipt: "rcpt-1"}}
		svc, dto, _ := setup(t, gateway)

		updated, err := svc.ConfirmPayment(context.Background(), dto.ID, dto.GuestID, "renter", "tok")
		require.NoError(t, err)
		assert.Equal(t, "pending_pickup", updated.Status)
		assert.NotNil(t, updated.PaidAt)
	})

	t.Run("amount mismatch is reported, not reconciled", func(t *testing.T) {
		gateway := &fakePaymentGateway{conf: paymentgw.Confirmation{Success: true, Amount: 30000}}
		svc, dto, _ := setup(t, gateway)

		_, err := svc.ConfirmPayment(context.Background(), dto.ID, dto.GuestID, "renter", "tok")
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindPricingMismatch))

		// Reservation is unchanged.
		current, err := svc.GetReservation(context.Background(), dto.ID, dto.GuestID)
		require.NoError(t, err)
		assert.Equal(t, "pending_payment", current.Status)
	})

	t.Run("gateway timeout leaves the reservation unchanged", func(t *testing.T) {
		gateway := &fakePaymentGateway{err: shared.NewPaymentTimeoutError("payment confirmation timed out")}
		svc, dto, _ := setup(t, gateway)

		_, err := svc.ConfirmPayment(context.Background(), dto.ID, dto.GuestID, "renter", "tok")
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindPaymentTimeout))

		current, err := svc.GetReservation(context.Background(), dto.ID, dto.GuestID)
		require.NoError(t, err)
		assert.Equal(t, "pending_payment", current.Status)
	})

	t.Run("wrong status", func(t *testing.T) {
		gateway := &fakePaymentGateway{conf: paymentgw.Confirmation{Success: true, Amount: 35000}}
		svc, dto, _ := setup(t, gateway)

		_, err := svc.ConfirmPayment(context.Background(), dto.ID, dto.GuestID, "renter", "tok")
		require.NoError(t, err)

		// Already pending_pickup; paying again is an invalid transition.
		_, err = svc.ConfirmPayment(context.Background(), dto.ID, dto.GuestID, "renter", "tok")
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
	})
}

// Two concurrent transitions racing for mutually exclusive outcomes:
// exactly one wins, the loser observes the new status and fails, and
// the audit log gains exactly one entry.
func TestTransition_ConcurrentMutuallyExclusiveOutcomes(t *testing.T) {
	repo := newFakeReservationRepository()
	snapshot := serviceSnapshot()
	svc := newTestService(repo, snapshot, &fakePaymentGateway{})
	dto := createTestReservation(t, svc, uuid.New())

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Transition(context.Background(), dto.ID, snapshot.OwnerID, "lender", TransitionRequest{
			TargetStatus: reservation.StatusRejected,
			Reason:       "double booked",
		})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Transition(context.Background(), dto.ID, dto.GuestID, "renter", TransitionRequest{
			TargetStatus: reservation.StatusCancelled,
			Reason:       "changed my mind",
		})
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, shared.IsKind(err, shared.KindInvalidTransition),
				"loser should fail with an invalid transition, got: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one racer must win")

	final, err := repo.FindByID(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.True(t, final.Status().IsTerminal())
	assert.Len(t, final.Logs(), 2, "exactly one new log entry, never two")
	assert.Equal(t, final.Status(), final.Logs()[1].Status)
}

func TestGetReservation_PartyOnly(t *testing.T) {
	repo := newFakeReservationRepository()
	svc := newTestService(repo, serviceSnapshot(), &fakePaymentGateway{})
	dto := createTestReservation(t, svc, uuid.New())

	_, err := svc.GetReservation(context.Background(), dto.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindUnauthorized))

	_, err = svc.GetReservation(context.Background(), dto.ID, dto.GuestID)
	require.NoError(t, err)
}

func TestCompleteRefund_ActsAsSystem(t *testing.T) {
	repo := newFakeReservationRepository()
	snapshot := serviceSnapshot()
	gateway := &fakePaymentGateway{conf: paymentgw.Confirmation{Success: true, Amount: 35000}}
	svc := newTestService(repo, snapshot, gateway)
	dto := createTestReservation(t, svc, uuid.New())
	ctx := context.Background()

	hostID := snapshot.OwnerID
	_, err := svc.Transition(ctx, dto.ID, hostID, "lender", TransitionRequest{TargetStatus: reservation.StatusPendingPayment})
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, dto.ID, dto.GuestID, "renter", "tok")
	require.NoError(t, err)
	for _, step := range []struct {
		actor uuid.UUID
		name  string
		to    reservation.Status
	}{
		{dto.GuestID, "renter", reservation.StatusInspectingRental},
		{dto.GuestID, "renter", reservation.StatusRenting},
		{dto.GuestID, "renter", reservation.StatusPendingReturn},
		{hostID, "lender", reservation.StatusInspectingReturn},
		{hostID, "lender", reservation.StatusReturnCompleted},
		{dto.GuestID, "renter", reservation.StatusPendingRefund},
	} {
		_, err := svc.Transition(ctx, dto.ID, step.actor, step.name, TransitionRequest{TargetStatus: step.to})
		require.NoError(t, err)
	}

	require.NoError(t, svc.CompleteRefund(ctx, dto.ID))

	final, err := repo.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusRefundCompleted, final.Status())

	logs := final.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, hostID, last.ActorID)
	assert.Equal(t, SystemActorNickname, last.ActorNickname)
}

func TestSweepPendingRefunds(t *testing.T) {
	repo := newFakeReservationRepository()
	snapshot := serviceSnapshot()
	gateway := &fakePaymentGateway{conf: paymentgw.Confirmation{Success: true, Amount: 35000}}
	svc := newTestService(repo, snapshot, gateway)
	ctx := context.Background()

	dto := createTestReservation(t, svc, uuid.New())
	hostID := snapshot.OwnerID
	_, err := svc.Transition(ctx, dto.ID, hostID, "lender", TransitionRequest{TargetStatus: reservation.StatusPendingPayment})
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, dto.ID, dto.GuestID, "renter", "tok")
	require.NoError(t, err)
	for _, step := range []struct {
		actor uuid.UUID
		name  string
		to    reservation.Status
	}{
		{dto.GuestID, "renter", reservation.StatusInspectingRental},
		{dto.GuestID, "renter", reservation.StatusRenting},
		{dto.GuestID, "renter", reservation.StatusPendingReturn},
		{hostID, "lender", reservation.StatusInspectingReturn},
		{hostID, "lender", reservation.StatusReturnCompleted},
		{dto.GuestID, "renter", reservation.StatusPendingRefund},
	} {
		_, err := svc.Transition(ctx, dto.ID, step.actor, step.name, TransitionRequest{TargetStatus: step.to})
		require.NoError(t, err)
	}

	t.Run("fresh refunds are left alone", func(t *testing.T) {
		advanced, err := svc.SweepPendingRefunds(ctx, time.Hour, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, advanced)
	})

	t.Run("stale refunds are completed", func(t *testing.T) {
		advanced, err := svc.SweepPendingRefunds(ctx, -time.Minute, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, advanced)

		final, err := repo.FindByID(ctx, dto.ID)
		require.NoError(t, err)
		assert.Equal(t, reservation.StatusRefundCompleted, final.Status())
	})
}

func TestGetReservationStats(t *testing.T) {
	repo := newFakeReservationRepository()
	svc := newTestService(repo, serviceSnapshot(), &fakePaymentGateway{})
	ctx := context.Background()

	createTestReservation(t, svc, uuid.New())
	createTestReservation(t, svc, uuid.New())

	stats, err := svc.GetReservationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalReservations)
	assert.Equal(t, int64(2), stats.ByStatus["pending_approval"])
}
