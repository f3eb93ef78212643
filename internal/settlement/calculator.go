package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
)

// Breakdown is the money split computed for one order.
type Breakdown struct {
	ItemTotalCents      int
	DeliveryFeeCents    int
	CommissionCents     int
	SellerNetCents      int
	PlatformMarginCents int
	PolicyVersion       string
}

// Policy defines how an order's proceeds are divided.
type Policy struct {
	Version        string
	CommissionRate decimal.Decimal
}

// PolicyV1 takes a flat 10% commission on item totals. The delivery fee is
// collected by the platform and never shared with the seller.
var PolicyV1 = Policy{
	Version:        "v1",
	CommissionRate: decimal.NewFromFloat(0.10),
}

var policiesByVersion = map[string]Policy{
	PolicyV1.Version: PolicyV1,
}

// PolicyForVersion resolves the named policy.
func PolicyForVersion(version string) (Policy, error) {
	policy, ok := policiesByVersion[version]
	if !ok {
		return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown settlement policy %q", version))
	}
	return policy, nil
}

// Calculator splits order totals between the seller and the platform.
type Calculator struct {
	policy Policy
}

// NewCalculator builds a calculator for the given policy version.
func NewCalculator(version string) (*Calculator, error) {
	policy, err := PolicyForVersion(version)
	if err != nil {
		return nil, err
	}
	return &Calculator{policy: policy}, nil
}

// PolicyVersion reports the active policy version.
func (c *Calculator) PolicyVersion() string {
	return c.policy.Version
}

// Compute derives the settlement breakdown for one order. Commission is
// rounded half-up exactly once; every other figure is arithmetic on the
// rounded value so the split always sums back to the captured total.
func (c *Calculator) Compute(itemTotalCents, deliveryFeeCents int) (Breakdown, error) {
	if itemTotalCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "item total must not be negative")
	}
	if deliveryFeeCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery fee must not be negative")
	}

	itemTotal := decimal.NewFromInt(int64(itemTotalCents))
	commission := itemTotal.Mul(c.policy.CommissionRate).Round(0)

	commissionCents := int(commission.IntPart())
	sellerNetCents := itemTotalCents - commissionCents

	return Breakdown{
		ItemTotalCents:      itemTotalCents,
		DeliveryFeeCents:    deliveryFeeCents,
		CommissionCents:     commissionCents,
		SellerNetCents:      sellerNetCents,
		PlatformMarginCents: commissionCents + deliveryFeeCents,
		PolicyVersion:       c.policy.Version,
	}, nil
}
