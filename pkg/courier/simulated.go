package courier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
)

// Simulated is an in-memory courier used in dev environments and tests.
type Simulated struct {
	mu       sync.Mutex
	bookings []BookingParams
	feeCents int
	failing  bool
}

// NewSimulated constructs a simulated courier with a flat delivery fee.
func NewSimulated() *Simulated {
	return &Simulated{feeCents: 1500}
}

// SetFeeCents overrides the flat fee returned by quotes.
func (s *Simulated) SetFeeCents(fee int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeCents = fee
}

// SetFailing toggles booking failures.
func (s *Simulated) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *Simulated) QuoteDeliveryFee(_ context.Context, params QuoteParams) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Quote{
		FeeCents: s.feeCents,
		Currency: "NGN",
		QuoteID:  "sim_quote_" + uuid.NewString(),
	}, nil
}

func (s *Simulated) BookShipment(_ context.Context, params BookingParams) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "courier request failed")
	}

	s.bookings = append(s.bookings, params)
	id := uuid.NewString()
	return &Booking{
		ShipmentID:   "sim_shp_" + id,
		TrackingCode: "SIM-" + id[:8],
		Status:       "booked",
	}, nil
}

// Bookings returns the bookings captured so far.
func (s *Simulated) Bookings() []BookingParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BookingParams, len(s.bookings))
	copy(out, s.bookings)
	return out
}
