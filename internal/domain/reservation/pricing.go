package reservation

import (
	"fmt"
	"time"

	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxSelectedOptions is the cap on listing options per reservation.
const MaxSelectedOptions = 5

// Quote is the derived pricing for a reservation period. Amounts are
// integer minor units in the snapshot's currency.
type Quote struct {
	Days         int    `json:"days"`
	RentalFee    int64  `json:"rental_fee"`
	DepositTotal int64  `json:"deposit_total"`
	TotalAmount  int64  `json:"total_amount"`
	Currency     string `json:"currency"`
}

// Calculator computes reservation quotes from listing snapshots.
type Calculator interface {
	// Quote returns the derived pricing for the period and option selection.
	Quote(snapshot *listing.PricingSnapshot, optionIDs []uuid.UUID, periodStart, periodEnd time.Time) (Quote, error)
}

// StandardCalculator implements the marketplace pricing formula:
// rental fee is (listing fee + selected option fees) per inclusive
// rental day; deposits are charged once.
type StandardCalculator struct{}

// NewStandardCalculator creates a new StandardCalculator.
func NewStandardCalculator() *StandardCalculator {
	return &StandardCalculator{}
}

// Quote computes the derived pricing. It is a pure function of its
// inputs: identical inputs always yield an identical quote, and the
// same computation runs at creation time and at payment confirmation.
func (c *StandardCalculator) Quote(snapshot *listing.PricingSnapshot, optionIDs []uuid.UUID, periodStart, periodEnd time.Time) (Quote, error) {
	if err := ValidateOptionSelection(snapshot, optionIDs); err != nil {
		return Quote{}, err
	}

	days, err := InclusiveDayCount(periodStart, periodEnd)
	if err != nil {
		return Quote{}, err
	}

	feePerDay := snapshot.Fee
	deposit := snapshot.Deposit
	for _, id := range optionIDs {
		opt, _ := snapshot.OptionByID(id)
		feePerDay += opt.Fee
		deposit += opt.Deposit
	}

	rentalFee := feePerDay * int64(days)
	return Quote{
		Days:         days,
		RentalFee:    rentalFee,
		DepositTotal: deposit,
		TotalAmount:  rentalFee + deposit,
		Currency:     snapshot.Currency,
	}, nil
}

// InclusiveDayCount returns the rental duration in calendar days with
// both endpoints counted. Time of day is ignored; the result is never
// below 1.
func InclusiveDayCount(start, end time.Time) (int, error) {
	startDay := TruncateToDay(start)
	endDay := TruncateToDay(end)
	if !endDay.After(startDay) {
		return 0, shared.NewValidationError("period end must be after period start")
	}
	days := int(endDay.Sub(startDay).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days, nil
}

// TruncateToDay drops the time-of-day component in UTC.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateOptionSelection enforces the option-selection rules: at most
// MaxSelectedOptions, no duplicates, and every id present in the
// listing's catalog.
func ValidateOptionSelection(snapshot *listing.PricingSnapshot, optionIDs []uuid.UUID) error {
	if len(optionIDs) > MaxSelectedOptions {
		return shared.NewValidationError(fmt.Sprintf("at most %d options may be selected", MaxSelectedOptions))
	}
	seen := make(map[uuid.UUID]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			return shared.NewValidationError(fmt.Sprintf("duplicate option selected: %s", id))
		}
		seen[id] = struct{}{}
		if _, ok := snapshot.OptionByID(id); !ok {
			return shared.NewValidationError(fmt.Sprintf("unknown listing option: %s", id))
		}
	}
	return nil
}
