package campaign

import (
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type GenerationStrategy string

const (
	StrategyOnDemand     GenerationStrategy = "ON_DEMAND"
	StrategyPreGenerated GenerationStrategy = "PRE_GENERATED"
)

type DiscountType string

const (
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountTypePercentage  DiscountType = "PERCENTAGE"
)

// legalTransitions is the closed transition table for campaign statuses.
// COMPLETED and CANCELLED are terminal.
var legalTransitions = map[Status][]Status{
	StatusDraft:     {StatusActive, StatusCancelled},
	StatusActive:    {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:    {StatusActive, StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether a campaign may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s Status) bool {
	return len(legalTransitions[s]) == 0
}

// DiscountValue is either a fixed currency amount or a percentage of the
// purchase, never both.
type DiscountValue struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func NewFixedDiscount(amount decimal.Decimal) DiscountValue {
	return DiscountValue{Type: DiscountTypeFixedAmount, Value: amount}
}

func NewPercentageDiscount(percent decimal.Decimal) DiscountValue {
	return DiscountValue{Type: DiscountTypePercentage, Value: percent}
}

// Validate checks the XOR contract: fixed amount > 0, or percentage in (0,100].
func (d DiscountValue) Validate() error {
	switch d.Type {
	case DiscountTypeFixedAmount:
		if !d.Value.IsPositive() {
			return xerrors.Wrap(xerrors.ErrInvalidInput, "fixed discount amount must be positive")
		}
	case DiscountTypePercentage:
		if !d.Value.IsPositive() || d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return xerrors.Wrap(xerrors.ErrInvalidInput, "percentage discount must be in (0,100]")
		}
	default:
		return xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown discount type %q", d.Type))
	}
	return nil
}

// Apply computes the discount and final amounts for a purchase. Percentage
// discounts round half-up to 2 decimals; a fixed discount is capped at the
// purchase amount so the final amount never goes below zero.
func (d DiscountValue) Apply(purchase decimal.Decimal) (discount, final decimal.Decimal) {
	switch d.Type {
	case DiscountTypePercentage:
		discount = purchase.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		discount = d.Value
	}
	if discount.GreaterThan(purchase) {
		discount = purchase
	}
	final = purchase.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return discount.Round(2), final.Round(2)
}

// ValidityPeriod is an inclusive instant range [StartsAt, EndsAt].
type ValidityPeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (p ValidityPeriod) Validate() error {
	if !p.StartsAt.Before(p.EndsAt) {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "validity period start must be before end")
	}
	return nil
}

// Contains reports whether the instant falls within the period.
func (p ValidityPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

// ApplicabilityRules constrain where and on what a campaign's coupons apply.
// Empty sets mean unrestricted.
type ApplicabilityRules struct {
	MinPurchaseAmount  decimal.NullDecimal `json:"min_purchase_amount,omitempty"`
	MaxPurchaseAmount  decimal.NullDecimal `json:"max_purchase_amount,omitempty"`
	AllowedFuelTypes   []string            `json:"allowed_fuel_types,omitempty"`
	AllowedStationIDs  []string            `json:"allowed_station_ids,omitempty"`
	ExcludedStationIDs []string            `json:"excluded_station_ids,omitempty"`
}

// UsageRules cap coupon use at campaign level. Zero means unlimited.
type UsageRules struct {
	MaxUses         int `json:"max_uses"`
	MaxUsesPerUser  int `json:"max_uses_per_user"`
	CooldownMinutes int `json:"cooldown_minutes"`
}

// Campaign is the aggregate guarding campaign lifecycle and coupon-issuance
// eligibility. All transitions return a new value; instances are never
// mutated in place.
type Campaign struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	Status               Status                 `json:"status"`
	Validity             ValidityPeriod         `json:"validity"`
	DefaultDiscount      DiscountValue          `json:"default_discount"`
	DefaultTicketCount   int                    `json:"default_ticket_count"`
	Strategy             GenerationStrategy     `json:"generation_strategy"`
	TargetCouponCount    int                    `json:"target_coupon_count"` // 0 = uncapped
	GeneratedCouponCount int                    `json:"generated_coupon_count"`
	UsedCouponCount      int                    `json:"used_coupon_count"`
	Applicability        ApplicabilityRules     `json:"applicability"`
	Usage                UsageRules             `json:"usage"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	Version              int64                  `json:"version"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`

	pending []event.Event
}

// CreateInput describes the data needed to create a campaign.
type CreateInput struct {
	Name               string
	Description        string
	Validity           ValidityPeriod
	DefaultDiscount    DiscountValue
	DefaultTicketCount int
	Strategy           GenerationStrategy
	TargetCouponCount  int
	Applicability      ApplicabilityRules
	Usage              UsageRules
	Metadata           map[string]interface{}
}

// Create validates the input and returns a new DRAFT campaign carrying a
// single campaign.created pending event.
func Create(input CreateInput, now func() time.Time, idGen func() string) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if input.Name == "" {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, "campaign name is required")
	}
	if err := input.Validity.Validate(); err != nil {
		return Campaign{}, err
	}
	if err := input.DefaultDiscount.Validate(); err != nil {
		return Campaign{}, err
	}
	if input.DefaultTicketCount < 0 {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, "default ticket count cannot be negative")
	}
	if input.TargetCouponCount < 0 {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, "target coupon count cannot be negative")
	}
	if input.Strategy != StrategyOnDemand && input.Strategy != StrategyPreGenerated {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown generation strategy %q", input.Strategy))
	}

	createdAt := now().UTC()
	c := Campaign{
		ID:                 idGen(),
		Name:               input.Name,
		Description:        input.Description,
		Status:             StatusDraft,
		Validity:           input.Validity,
		DefaultDiscount:    input.DefaultDiscount,
		DefaultTicketCount: input.DefaultTicketCount,
		Strategy:           input.Strategy,
		TargetCouponCount:  input.TargetCouponCount,
		Applicability:      input.Applicability,
		Usage:              input.Usage,
		Metadata:           input.Metadata,
		Version:            1,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	c.pending = appendEvent(nil, event.New(event.TypeCampaignCreated, "campaign", c.ID, createdAt, map[string]interface{}{
		"name":     c.Name,
		"strategy": string(c.Strategy),
	}))
	return c, nil
}

// ChangeStatus moves the campaign along the legal transition table. A
// same-to-same change is a no-op returning the campaign unchanged with no
// event; an illegal edge fails with ErrInvalidStateTransition.
func (c Campaign) ChangeStatus(target Status, reason string, now time.Time) (Campaign, error) {
	if target == c.Status {
		return c, nil
	}
	if !CanTransition(c.Status, target) {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("campaign %s: %s -> %s", c.ID, c.Status, target))
	}
	prev := c.Status
	c.Status = target
	c.UpdatedAt = now.UTC()
	c.pending = appendEvent(c.pending, event.New(event.TypeCampaignStatusChanged, "campaign", c.ID, now, map[string]interface{}{
		"from":   string(prev),
		"to":     string(target),
		"reason": reason,
	}))
	return c, nil
}

// CanGenerateCoupons reports whether the campaign may issue coupons at the
// given instant: it must be ACTIVE, within its validity period, and under its
// target cap when one is set.
func (c Campaign) CanGenerateCoupons(asOf time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if !c.Validity.Contains(asOf) {
		return false
	}
	if c.TargetCouponCount > 0 && c.GeneratedCouponCount >= c.TargetCouponCount {
		return false
	}
	return true
}

// RecordCouponsGenerated bumps the generated counter. An increment that would
// push the counter past the target cap fails with ErrCapacityExceeded and
// leaves the campaign untouched.
func (c Campaign) RecordCouponsGenerated(count int, now time.Time) (Campaign, error) {
	if count <= 0 {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, "generated count must be positive")
	}
	if c.TargetCouponCount > 0 && c.GeneratedCouponCount+count > c.TargetCouponCount {
		return Campaign{}, xerrors.Wrap(xerrors.ErrCapacityExceeded,
			fmt.Sprintf("campaign %s: %d generated + %d requested > target %d",
				c.ID, c.GeneratedCouponCount, count, c.TargetCouponCount))
	}
	c.GeneratedCouponCount += count
	c.UpdatedAt = now.UTC()
	return c, nil
}

// RecordCouponsUsed bumps the used counter, which can never exceed the
// generated counter.
func (c Campaign) RecordCouponsUsed(count int, now time.Time) (Campaign, error) {
	if count <= 0 {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput, "used count must be positive")
	}
	if c.UsedCouponCount+count > c.GeneratedCouponCount {
		return Campaign{}, xerrors.Wrap(xerrors.ErrInvalidInput,
			fmt.Sprintf("campaign %s: used count %d would exceed generated count %d",
				c.ID, c.UsedCouponCount+count, c.GeneratedCouponCount))
	}
	c.UsedCouponCount += count
	c.UpdatedAt = now.UTC()
	return c, nil
}

// ProgressPercent returns generated/target as a percentage clamped to 100.
// Uncapped campaigns report 0.
func (c Campaign) ProgressPercent() float64 {
	if c.TargetCouponCount <= 0 {
		return 0
	}
	p := float64(c.GeneratedCouponCount) / float64(c.TargetCouponCount) * 100
	if p > 100 {
		return 100
	}
	return p
}

// UsageRate returns used/generated, 0 when nothing has been generated.
func (c Campaign) UsageRate() float64 {
	if c.GeneratedCouponCount == 0 {
		return 0
	}
	return float64(c.UsedCouponCount) / float64(c.GeneratedCouponCount)
}

// PendingEvents returns the events accumulated since the last drain.
func (c Campaign) PendingEvents() []event.Event {
	return c.pending
}

// ClearPending returns the campaign with an empty event buffer. Called by the
// orchestrating service after the events were handed to the publisher.
func (c Campaign) ClearPending() Campaign {
	c.pending = nil
	return c
}

// appendEvent copies before appending so sibling values never share a buffer.
func appendEvent(evs []event.Event, ev event.Event) []event.Event {
	out := make([]event.Event, len(evs), len(evs)+1)
	copy(out, evs)
	return append(out, ev)
}
