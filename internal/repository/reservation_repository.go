package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/reservation"
	"github.com/gearshare/service-reservation/internal/domain/shared"
)

// ReservationModel is the GORM model for the reservations table.
type ReservationModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ListingID         uuid.UUID       `gorm:"type:uuid;index;not null"`
	GuestID           uuid.UUID       `gorm:"type:uuid;index;not null"`
	HostID            uuid.UUID       `gorm:"type:uuid;index;not null"`
	Status            string          `gorm:"not null;size:30;index"`
	ReceiveMethod     string          `gorm:"not null;size:10"`
	ReturnMethod      string          `gorm:"not null;size:10"`
	PeriodStart       time.Time       `gorm:"type:date;not null"`
	PeriodEnd         time.Time       `gorm:"type:date;not null"`
	SelectedOptionIDs json.RawMessage `gorm:"type:jsonb;not null"`
	DeliveryAddress   string          `gorm:"size:500"`
	Quote             json.RawMessage `gorm:"type:jsonb;not null"`
	OutboundShipping  json.RawMessage `gorm:"type:jsonb"`
	ReturnShipping    json.RawMessage `gorm:"type:jsonb"`
	CancelReason      string          `gorm:"size:500"`
	RejectReason      string          `gorm:"size:500"`
	ClaimReason       string          `gorm:"size:500"`
	HasReviewed       bool            `gorm:"not null;default:false"`
	PaidAt            *time.Time      `gorm:""`
	RentedAt          *time.Time      `gorm:""`
	ReturnedAt        *time.Time      `gorm:""`
	CancelledAt       *time.Time      `gorm:""`
	Version           int64           `gorm:"not null;default:1"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ReservationModel) TableName() string {
	return "reservations"
}

// ReservationLogModel is the GORM model for the append-only audit table.
// Rows are only ever inserted.
type ReservationLogModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReservationID uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_reservation_logs_seq,priority:1"`
	Seq           int       `gorm:"not null;uniqueIndex:idx_reservation_logs_seq,priority:2"`
	Status        string    `gorm:"not null;size:30"`
	ActorID       uuid.UUID `gorm:"type:uuid;not null"`
	ActorNickname string    `gorm:"not null;size:100"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ReservationLogModel) TableName() string {
	return "reservation_logs"
}

// GormReservationRepository is the GORM-based implementation of
// reservation.Repository.
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository.
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindByID retrieves a reservation with its full log trail.
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	var model ReservationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Reservation", id.String())
		}
		return nil, fmt.Errorf("failed to find reservation by ID: %w", err)
	}

	logs, err := r.loadLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDomainReservation(&model, logs)
}

// FindByGuestID retrieves a guest's reservations with pagination.
func (r *GormReservationRepository) FindByGuestID(ctx context.Context, guestID uuid.UUID, status reservation.Status, page, limit int) ([]*reservation.Reservation, int64, error) {
	return r.findByParty(ctx, "guest_id", guestID, status, page, limit)
}

// FindByHostID retrieves a host's reservations with pagination.
func (r *GormReservationRepository) FindByHostID(ctx context.Context, hostID uuid.UUID, status reservation.Status, page, limit int) ([]*reservation.Reservation, int64, error) {
	return r.findByParty(ctx, "host_id", hostID, status, page, limit)
}

func (r *GormReservationRepository) findByParty(ctx context.Context, column string, partyID uuid.UUID, status reservation.Status, page, limit int) ([]*reservation.Reservation, int64, error) {
	query := r.db.WithContext(ctx).Model(&ReservationModel{}).Where(column+" = ?", partyID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	var models []ReservationModel
	offset := (page - 1) * limit
	if err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find reservations: %w", err)
	}

	return r.attachLogs(ctx, models, total)
}

// FindStaleByStatus retrieves reservations that entered the given
// status before the cutoff, oldest first.
func (r *GormReservationRepository) FindStaleByStatus(ctx context.Context, status reservation.Status, cutoff time.Time, limit int) ([]*reservation.Reservation, error) {
	var models []ReservationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale reservations: %w", err)
	}

	result, _, err := r.attachLogs(ctx, models, int64(len(models)))
	return result, err
}

// ListAll retrieves all reservations with pagination (admin).
func (r *GormReservationRepository) ListAll(ctx context.Context, page, limit int) ([]*reservation.Reservation, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&ReservationModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	var models []ReservationModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}

	return r.attachLogs(ctx, models, total)
}

// CountByStatus returns reservation counts grouped by status (admin).
func (r *GormReservationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new reservation and its first log entry in one transaction.
func (r *GormReservationRepository) Save(ctx context.Context, res *reservation.Reservation) error {
	model, err := toReservationModel(res)
	if err != nil {
		return fmt.Errorf("failed to convert reservation to model: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to save reservation: %w", err)
		}
		for _, entry := range res.Logs() {
			if err := tx.Create(toLogModel(entry)).Error; err != nil {
				return fmt.Errorf("failed to save reservation log: %w", err)
			}
		}
		return nil
	})
}

// Update persists changes with optimistic locking and appends any new
// log entries in the same transaction. Existing log rows are never
// touched.
func (r *GormReservationRepository) Update(ctx context.Context, res *reservation.Reservation) error {
	model, err := toReservationModel(res)
	if err != nil {
		return fmt.Errorf("failed to convert reservation to model: %w", err)
	}

	// IncrementVersion was called before Update, so the row must still
	// carry the previous version.
	expectedVersion := res.Version() - 1

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ReservationModel{}).
			Where("id = ? AND version = ?", model.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":             model.Status,
				"outbound_shipping":  model.OutboundShipping,
				"return_shipping":    model.ReturnShipping,
				"cancel_reason":      model.CancelReason,
				"reject_reason":      model.RejectReason,
				"claim_reason":       model.ClaimReason,
				"has_reviewed":       model.HasReviewed,
				"paid_at":            model.PaidAt,
				"rented_at":          model.RentedAt,
				"returned_at":        model.ReturnedAt,
				"cancelled_at":       model.CancelledAt,
				"version":            model.Version,
				"updated_at":         model.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update reservation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewConflictError("reservation was modified by another transaction")
		}

		var persisted int64
		if err := tx.Model(&ReservationLogModel{}).
			Where("reservation_id = ?", model.ID).
			Count(&persisted).Error; err != nil {
			return fmt.Errorf("failed to count reservation logs: %w", err)
		}
		for _, entry := range res.Logs() {
			if int64(entry.Seq) <= persisted {
				continue
			}
			if err := tx.Create(toLogModel(entry)).Error; err != nil {
				return fmt.Errorf("failed to append reservation log: %w", err)
			}
		}
		return nil
	})
}

// --- Helpers ---

func (r *GormReservationRepository) loadLogs(ctx context.Context, reservationID uuid.UUID) ([]reservation.Log, error) {
	var models []ReservationLogModel
	if err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load reservation logs: %w", err)
	}

	logs := make([]reservation.Log, len(models))
	for i, m := range models {
		status, err := reservation.ParseStatus(m.Status)
		if err != nil {
			return nil, err
		}
		logs[i] = reservation.Log{
			ID:            m.ID,
			ReservationID: m.ReservationID,
			Seq:           m.Seq,
			Status:        status,
			ActorID:       m.ActorID,
			ActorNickname: m.ActorNickname,
			CreatedAt:     m.CreatedAt,
		}
	}
	return logs, nil
}

func (r *GormReservationRepository) attachLogs(ctx context.Context, models []ReservationModel, total int64) ([]*reservation.Reservation, int64, error) {
	reservations := make([]*reservation.Reservation, len(models))
	for i, m := range models {
		logs, err := r.loadLogs(ctx, m.ID)
		if err != nil {
			return nil, 0, err
		}
		res, err := toDomainReservation(&m, logs)
		if err != nil {
			return nil, 0, err
		}
		reservations[i] = res
	}
	return reservations, total, nil
}

// --- Conversion helpers ---

func toReservationModel(res *reservation.Reservation) (*ReservationModel, error) {
	optionIDs, err := json.Marshal(res.SelectedOptionIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal option ids: %w", err)
	}
	quote, err := json.Marshal(res.PricingQuote())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote: %w", err)
	}

	var outbound, ret json.RawMessage
	if res.OutboundShipping() != nil {
		if outbound, err = json.Marshal(res.OutboundShipping()); err != nil {
			return nil, fmt.Errorf("failed to marshal outbound shipping: %w", err)
		}
	}
	if res.ReturnShipping() != nil {
		if ret, err = json.Marshal(res.ReturnShipping()); err != nil {
			return nil, fmt.Errorf("failed to marshal return shipping: %w", err)
		}
	}

	return &ReservationModel{
		ID:                res.ID(),
		ListingID:         res.ListingID(),
		GuestID:           res.GuestID(),
		HostID:            res.HostID(),
		Status:            string(res.Status()),
		ReceiveMethod:     string(res.ReceiveMethod()),
		ReturnMethod:      string(res.ReturnMethod()),
		PeriodStart:       res.PeriodStart(),
		PeriodEnd:         res.PeriodEnd(),
		SelectedOptionIDs: optionIDs,
		DeliveryAddress:   res.DeliveryAddress(),
		Quote:             quote,
		OutboundShipping:  outbound,
		ReturnShipping:    ret,
		CancelReason:      res.CancelReason(),
		RejectReason:      res.RejectReason(),
		ClaimReason:       res.ClaimReason(),
		HasReviewed:       res.HasReviewed(),
		PaidAt:            res.PaidAt(),
		RentedAt:          res.RentedAt(),
		ReturnedAt:        res.ReturnedAt(),
		CancelledAt:       res.CancelledAt(),
		Version:           res.Version(),
		CreatedAt:         res.CreatedAt(),
		UpdatedAt:         res.UpdatedAt(),
	}, nil
}

func toLogModel(entry reservation.Log) *ReservationLogModel {
	return &ReservationLogModel{
		ID:            entry.ID,
		ReservationID: entry.ReservationID,
		Seq:           entry.Seq,
		Status:        string(entry.Status),
		ActorID:       entry.ActorID,
		ActorNickname: entry.ActorNickname,
		CreatedAt:     entry.CreatedAt,
	}
}

func toDomainReservation(m *ReservationModel, logs []reservation.Log) (*reservation.Reservation, error) {
	var optionIDs []uuid.UUID
	if err := json.Unmarshal(m.SelectedOptionIDs, &optionIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal option ids: %w", err)
	}

	var quote reservation.Quote
	if err := json.Unmarshal(m.Quote, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
	}

	var outbound, ret *reservation.ShippingInfo
	if len(m.OutboundShipping) > 0 {
		var info reservation.ShippingInfo
		if err := json.Unmarshal(m.OutboundShipping, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outbound shipping: %w", err)
		}
		outbound = &info
	}
	if len(m.ReturnShipping) > 0 {
		var info reservation.ShippingInfo
		if err := json.Unmarshal(m.ReturnShipping, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal return shipping: %w", err)
		}
		ret = &info
	}

	status, err := reservation.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return reservation.ReconstructReservation(
		m.ID,
		m.ListingID,
		m.GuestID,
		m.HostID,
		status,
		listing.HandoverMethod(m.ReceiveMethod),
		listing.HandoverMethod(m.ReturnMethod),
		m.PeriodStart,
		m.PeriodEnd,
		optionIDs,
		m.DeliveryAddress,
		quote,
		outbound,
		ret,
		m.CancelReason,
		m.RejectReason,
		m.ClaimReason,
		m.HasReviewed,
		m.PaidAt,
		m.RentedAt,
		m.ReturnedAt,
		m.CancelledAt,
		logs,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}
