package redemption

import (
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"
	"fuelpoints-service/internal/pkg/refnum"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusVoided    Status = "VOIDED"
	StatusExpired   Status = "EXPIRED"
)

// Redemption records the application of a coupon against a purchase. It owns
// the base ticket count and the at-most-once ad multiplier.
type Redemption struct {
	ID             string          `json:"id"`
	CouponID       string          `json:"coupon_id"`
	CouponCode     string          `json:"coupon_code"`
	CampaignID     string          `json:"campaign_id"`
	UserID         string          `json:"user_id"`
	StationID      string          `json:"station_id"`
	EmployeeID     string          `json:"employee_id,omitempty"`
	PurchaseAmount decimal.Decimal `json:"purchase_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	FuelType       string          `json:"fuel_type"`
	FuelQuantity   decimal.Decimal `json:"fuel_quantity"`
	FuelUnitPrice  decimal.Decimal `json:"fuel_unit_price"`
	Reference      string          `json:"reference"`
	Status         Status          `json:"status"`
	BaseTicketCount int            `json:"base_ticket_count"`
	// Multiplier is 0 until an ad multiplier is applied; it is set at most once.
	Multiplier          int        `json:"multiplier"`
	MultiplierAppliedAt *time.Time `json:"multiplier_applied_at,omitempty"`
	RedeemedAt          time.Time  `json:"redeemed_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	pending []event.Event
}

// NewInput is everything the engine passes to build a redemption record.
type NewInput struct {
	Coupon        coupon.Coupon
	Purchase      coupon.PurchaseContext
	EmployeeID    string
	FuelQuantity  decimal.Decimal
	FuelUnitPrice decimal.Decimal
	Reference     string
}

// New computes the discount from the coupon's bound discount value and builds
// a COMPLETED redemption carrying a redemption.completed pending event. The
// caller is responsible for having redeemed the coupon first.
func New(input NewInput, now func() time.Time, idGen func() string) (Redemption, error) {
	if now == nil {
		now = time.Now
	}
	if !input.Purchase.Amount.IsPositive() {
		return Redemption{}, xerrors.Wrap(xerrors.ErrInvalidInput, "purchase amount must be positive")
	}
	if !refnum.Valid(input.Reference) {
		return Redemption{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed reference %q", input.Reference))
	}

	discountAmount, finalAmount := input.Coupon.Discount.Apply(input.Purchase.Amount)

	ts := now().UTC()
	r := Redemption{
		ID:              idGen(),
		CouponID:        input.Coupon.ID,
		CouponCode:      input.Coupon.Code,
		CampaignID:      input.Coupon.CampaignID,
		UserID:          input.Purchase.UserID,
		StationID:       input.Purchase.StationID,
		EmployeeID:      input.EmployeeID,
		PurchaseAmount:  input.Purchase.Amount.Round(2),
		DiscountAmount:  discountAmount,
		FinalAmount:     finalAmount,
		FuelType:        input.Purchase.FuelType,
		FuelQuantity:    input.FuelQuantity,
		FuelUnitPrice:   input.FuelUnitPrice,
		Reference:       input.Reference,
		Status:          StatusCompleted,
		BaseTicketCount: input.Coupon.TicketCount,
		RedeemedAt:      ts,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	r.pending = appendEvent(nil, event.New(event.TypeRedemptionCompleted, "redemption", r.ID, ts, map[string]interface{}{
		"coupon_code":     r.CouponCode,
		"campaign_id":     r.CampaignID,
		"user_id":         r.UserID,
		"station_id":      r.StationID,
		"reference":       r.Reference,
		"discount_amount": r.DiscountAmount.String(),
		"final_amount":    r.FinalAmount.String(),
		"base_tickets":    r.BaseTicketCount,
	}))
	return r, nil
}

// ApplyAdMultiplier records a verified ad-engagement multiplier at most once
// and returns the number of additional tickets to mint: (m-1) * baseTickets.
// Multipliers above the configured maximum are capped, not rejected.
func (r Redemption) ApplyAdMultiplier(multiplier, maxMultiplier int, now time.Time) (Redemption, int, error) {
	if multiplier < 1 {
		return Redemption{}, 0, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("multiplier must be >= 1, got %d", multiplier))
	}
	if r.Status != StatusCompleted {
		return Redemption{}, 0, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("redemption %s is %s, not COMPLETED", r.ID, r.Status))
	}
	if r.Multiplier != 0 {
		return Redemption{}, 0, xerrors.Wrap(xerrors.ErrMultiplierAlreadyApplied, fmt.Sprintf("redemption %s", r.ID))
	}
	if maxMultiplier >= 1 && multiplier > maxMultiplier {
		multiplier = maxMultiplier
	}

	ts := now.UTC()
	r.Multiplier = multiplier
	r.MultiplierAppliedAt = &ts
	r.UpdatedAt = ts
	return r, (multiplier - 1) * r.BaseTicketCount, nil
}

// ExpectedTicketCount derives how many tickets this redemption should own,
// from the coupon's base count and the applied multiplier. A reconciliation
// job compares this against the persisted ticket count to detect short mints.
func (r Redemption) ExpectedTicketCount() int {
	return ExpectedTicketCount(r.BaseTicketCount, r.Multiplier)
}

// ExpectedTicketCount is the pure form: multiplier 0 means none applied.
func ExpectedTicketCount(baseTickets, multiplier int) int {
	if multiplier < 1 {
		multiplier = 1
	}
	return baseTickets * multiplier
}

// Void cancels a completed redemption, e.g. when a purchase is reversed.
func (r Redemption) Void(reason string, now time.Time) (Redemption, error) {
	if r.Status != StatusCompleted && r.Status != StatusPending {
		return Redemption{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("redemption %s: %s -> VOIDED", r.ID, r.Status))
	}
	r.Status = StatusVoided
	r.UpdatedAt = now.UTC()
	r.pending = appendEvent(r.pending, event.New(event.TypeRedemptionVoided, "redemption", r.ID, now, map[string]interface{}{
		"reason": reason,
	}))
	return r, nil
}

// PendingEvents returns the events accumulated since the last drain.
func (r Redemption) PendingEvents() []event.Event {
	return r.pending
}

// ClearPending returns the redemption with an empty event buffer.
func (r Redemption) ClearPending() Redemption {
	r.pending = nil
	return r
}

// RecordEvent appends an event to the pending buffer; the engine uses this to
// attach ticket-batch events to the redemption's transaction.
func (r Redemption) RecordEvent(ev event.Event) Redemption {
	r.pending = appendEvent(r.pending, ev)
	return r
}

func appendEvent(evs []event.Event, ev event.Event) []event.Event {
	out := make([]event.Event, len(evs), len(evs)+1)
	copy(out, evs)
	return append(out, ev)
}
