package listing

import (
	"context"

	"github.com/google/uuid"
)

// HandoverMethod is how a rented item changes hands for pickup or return.
type HandoverMethod string

const (
	MethodDirect   HandoverMethod = "direct"
	MethodDelivery HandoverMethod = "delivery"
)

// IsValid returns true if the handover method is recognized.
func (m HandoverMethod) IsValid() bool {
	return m == MethodDirect || m == MethodDelivery
}

// MethodPolicy is a listing's configured handover policy for one leg.
type MethodPolicy string

const (
	PolicyDirect   MethodPolicy = "direct"
	PolicyDelivery MethodPolicy = "delivery"
	PolicyEither   MethodPolicy = "either"
)

// Default resolves the policy to a concrete method for persistence.
// "either" defaults to direct handover.
func (p MethodPolicy) Default() HandoverMethod {
	if p == PolicyDelivery {
		return MethodDelivery
	}
	return MethodDirect
}

// Allows reports whether the policy permits the given concrete method.
func (p MethodPolicy) Allows(m HandoverMethod) bool {
	switch p {
	case PolicyEither:
		return m.IsValid()
	case PolicyDirect:
		return m == MethodDirect
	case PolicyDelivery:
		return m == MethodDelivery
	}
	return false
}

// Option is a rentable add-on with its own fee and deposit.
type Option struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Fee     int64     `json:"fee"`
	Deposit int64     `json:"deposit"`
}

// PricingSnapshot is a read-only view of a listing's pricing
// configuration at the moment of calculation. The engine never locks
// or mutates the listing.
type PricingSnapshot struct {
	ListingID     uuid.UUID    `json:"listing_id"`
	OwnerID       uuid.UUID    `json:"owner_id"`
	OwnerNickname string       `json:"owner_nickname"`
	Fee           int64        `json:"fee"`
	Deposit       int64        `json:"deposit"`
	Currency      string       `json:"currency"`
	Options       []Option     `json:"options"`
	ReceiveMethod MethodPolicy `json:"receive_method"`
	ReturnMethod  MethodPolicy `json:"return_method"`
}

// OptionByID looks up an option in the snapshot's catalog.
func (s *PricingSnapshot) OptionByID(id uuid.UUID) (Option, bool) {
	for _, opt := range s.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Service is the Listing Service collaborator consumed by the engine.
type Service interface {
	// GetPricing fetches the listing's pricing snapshot.
	GetPricing(ctx context.Context, listingID uuid.UUID) (*PricingSnapshot, error)
}
