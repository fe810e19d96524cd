package coupon

import (
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusUsed    Status = "USED"
	StatusExpired Status = "EXPIRED"
	StatusVoid    Status = "VOID"
)

// ValidationReason is the first failing check of an ordered validation pass.
type ValidationReason string

const (
	ReasonAlreadyUsed        ValidationReason = "ALREADY_USED"
	ReasonVoided             ValidationReason = "VOIDED"
	ReasonExpired            ValidationReason = "EXPIRED"
	ReasonNotYetValid        ValidationReason = "NOT_YET_VALID"
	ReasonBelowMinPurchase   ValidationReason = "BELOW_MIN_PURCHASE"
	ReasonAboveMaxPurchase   ValidationReason = "ABOVE_MAX_PURCHASE"
	ReasonFuelTypeNotAllowed ValidationReason = "FUEL_TYPE_NOT_ALLOWED"
	ReasonStationNotAllowed  ValidationReason = "STATION_NOT_ALLOWED"
	ReasonStationExcluded    ValidationReason = "STATION_EXCLUDED"
	ReasonWrongUser          ValidationReason = "WRONG_USER"
)

// ValidationError carries the specific first-failure reason. It unwraps to
// xerrors.ErrValidationFailed so callers can match the class with errors.Is.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("coupon validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("coupon validation failed: %s (%s)", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return xerrors.ErrValidationFailed }

// PurchaseContext is the point-of-sale context a coupon is validated against.
type PurchaseContext struct {
	UserID    string
	StationID string
	FuelType  string
	Amount    decimal.Decimal
	AsOf      time.Time
}

// Coupon is a single-use redemption right derived from a campaign. The
// campaign is referenced by id only; applicability rules are snapshotted at
// generation time so validation never needs the live campaign.
type Coupon struct {
	ID            string                      `json:"id"`
	CampaignID    string                      `json:"campaign_id"`
	Code          string                      `json:"code"`
	Discount      campaign.DiscountValue      `json:"discount"`
	TicketCount   int                         `json:"ticket_count"`
	Status        Status                      `json:"status"`
	GeneratedAt   time.Time                   `json:"generated_at"`
	ValidFrom     time.Time                   `json:"valid_from"`
	ValidUntil    time.Time                   `json:"valid_until"`
	BoundUserID   string                      `json:"bound_user_id,omitempty"`
	RedemptionID  string                      `json:"redemption_id,omitempty"`
	Applicability campaign.ApplicabilityRules `json:"applicability"`
	Version       int64                       `json:"version"`

	pending []event.Event
}

// GenerateOptions override campaign defaults for a single coupon or batch.
type GenerateOptions struct {
	OverrideDiscount *campaign.DiscountValue
	OverrideTickets  *int
	BoundUserID      string
}

// Generate mints a coupon for an eligible campaign. The code generator is
// injected so tests stay deterministic; uniqueness of the produced code is
// the persistence layer's concern.
func Generate(c campaign.Campaign, opts GenerateOptions, now func() time.Time, idGen func() string, codeGen func() (string, error)) (Coupon, error) {
	if now == nil {
		now = time.Now
	}
	generatedAt := now().UTC()
	if !c.CanGenerateCoupons(generatedAt) {
		return Coupon{}, xerrors.Wrap(xerrors.ErrCapacityExceeded,
			fmt.Sprintf("campaign %s cannot generate coupons", c.ID))
	}

	discount := c.DefaultDiscount
	if opts.OverrideDiscount != nil {
		discount = *opts.OverrideDiscount
	}
	if err := discount.Validate(); err != nil {
		return Coupon{}, err
	}
	tickets := c.DefaultTicketCount
	if opts.OverrideTickets != nil {
		tickets = *opts.OverrideTickets
	}
	if tickets < 0 {
		return Coupon{}, xerrors.Wrap(xerrors.ErrInvalidInput, "ticket count cannot be negative")
	}

	code, err := codeGen()
	if err != nil {
		return Coupon{}, xerrors.Wrap(err, "generate coupon code")
	}

	cp := Coupon{
		ID:            idGen(),
		CampaignID:    c.ID,
		Code:          code,
		Discount:      discount,
		TicketCount:   tickets,
		Status:        StatusActive,
		GeneratedAt:   generatedAt,
		ValidFrom:     c.Validity.StartsAt,
		ValidUntil:    c.Validity.EndsAt,
		BoundUserID:   opts.BoundUserID,
		Applicability: c.Applicability,
		Version:       1,
	}
	cp.pending = append(cp.pending, event.New(event.TypeCouponGenerated, "coupon", cp.ID, generatedAt, map[string]interface{}{
		"campaign_id": cp.CampaignID,
		"code":        cp.Code,
	}))
	return cp, nil
}

// Validate runs the ordered validation checks and returns the first failure:
// status, then validity window, then purchase bounds, then fuel type, then
// station rules, then user binding. It never partially applies.
func (c Coupon) Validate(pc PurchaseContext) error {
	switch c.Status {
	case StatusActive:
	case StatusUsed:
		return &ValidationError{Reason: ReasonAlreadyUsed}
	case StatusExpired:
		return &ValidationError{Reason: ReasonExpired}
	case StatusVoid:
		return &ValidationError{Reason: ReasonVoided}
	default:
		return &ValidationError{Reason: ReasonVoided, Detail: fmt.Sprintf("unknown status %q", c.Status)}
	}

	if pc.AsOf.Before(c.ValidFrom) {
		return &ValidationError{Reason: ReasonNotYetValid, Detail: fmt.Sprintf("valid from %s", c.ValidFrom.Format(time.RFC3339))}
	}
	if pc.AsOf.After(c.ValidUntil) {
		return &ValidationError{Reason: ReasonExpired, Detail: fmt.Sprintf("valid until %s", c.ValidUntil.Format(time.RFC3339))}
	}

	if c.Applicability.MinPurchaseAmount.Valid && pc.Amount.LessThan(c.Applicability.MinPurchaseAmount.Decimal) {
		return &ValidationError{Reason: ReasonBelowMinPurchase, Detail: fmt.Sprintf("minimum %s", c.Applicability.MinPurchaseAmount.Decimal)}
	}
	if c.Applicability.MaxPurchaseAmount.Valid && pc.Amount.GreaterThan(c.Applicability.MaxPurchaseAmount.Decimal) {
		return &ValidationError{Reason: ReasonAboveMaxPurchase, Detail: fmt.Sprintf("maximum %s", c.Applicability.MaxPurchaseAmount.Decimal)}
	}

	if len(c.Applicability.AllowedFuelTypes) > 0 && !contains(c.Applicability.AllowedFuelTypes, pc.FuelType) {
		return &ValidationError{Reason: ReasonFuelTypeNotAllowed, Detail: pc.FuelType}
	}

	if len(c.Applicability.AllowedStationIDs) > 0 && !contains(c.Applicability.AllowedStationIDs, pc.StationID) {
		return &ValidationError{Reason: ReasonStationNotAllowed, Detail: pc.StationID}
	}
	if contains(c.Applicability.ExcludedStationIDs, pc.StationID) {
		return &ValidationError{Reason: ReasonStationExcluded, Detail: pc.StationID}
	}

	if c.BoundUserID != "" && c.BoundUserID != pc.UserID {
		return &ValidationError{Reason: ReasonWrongUser}
	}
	return nil
}

// Redeem transitions the coupon to USED at most once. A second call fails
// with ErrAlreadyRedeemed and performs no mutation.
func (c Coupon) Redeem(redemptionID, userID string, now time.Time) (Coupon, error) {
	if c.Status == StatusUsed {
		return Coupon{}, xerrors.Wrap(xerrors.ErrAlreadyRedeemed, fmt.Sprintf("coupon %s", c.Code))
	}
	if c.Status != StatusActive {
		return Coupon{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("coupon %s: %s -> USED", c.Code, c.Status))
	}
	c.Status = StatusUsed
	c.RedemptionID = redemptionID
	if c.BoundUserID == "" {
		c.BoundUserID = userID
	}
	c.pending = appendEvent(c.pending, event.New(event.TypeCouponRedeemed, "coupon", c.ID, now, map[string]interface{}{
		"campaign_id":   c.CampaignID,
		"code":          c.Code,
		"redemption_id": redemptionID,
		"user_id":       userID,
	}))
	return c, nil
}

// Expire moves an ACTIVE coupon past its validity window to EXPIRED. It is a
// no-op for any other state or when the window is still open.
func (c Coupon) Expire(asOf time.Time) (Coupon, bool) {
	if c.Status != StatusActive || !asOf.After(c.ValidUntil) {
		return c, false
	}
	c.Status = StatusExpired
	c.pending = appendEvent(c.pending, event.New(event.TypeCouponExpired, "coupon", c.ID, asOf, map[string]interface{}{
		"campaign_id": c.CampaignID,
		"code":        c.Code,
	}))
	return c, true
}

// Void withdraws an ACTIVE coupon from circulation.
func (c Coupon) Void(reason string, now time.Time) (Coupon, error) {
	if c.Status != StatusActive {
		return Coupon{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("coupon %s: %s -> VOID", c.Code, c.Status))
	}
	c.Status = StatusVoid
	c.pending = appendEvent(c.pending, event.New(event.TypeCouponVoided, "coupon", c.ID, now, map[string]interface{}{
		"campaign_id": c.CampaignID,
		"code":        c.Code,
		"reason":      reason,
	}))
	return c, nil
}

// PendingEvents returns the events accumulated since the last drain.
func (c Coupon) PendingEvents() []event.Event {
	return c.pending
}

// ClearPending returns the coupon with an empty event buffer.
func (c Coupon) ClearPending() Coupon {
	c.pending = nil
	return c
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func appendEvent(evs []event.Event, ev event.Event) []event.Event {
	out := make([]event.Event, len(evs), len(evs)+1)
	copy(out, evs)
	return append(out, ev)
}
