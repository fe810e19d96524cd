package coupon

import (
	"errors"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func staticCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func activeCampaign(t *testing.T) campaign.Campaign {
	t.Helper()
	c, err := campaign.Create(campaign.CreateInput{
		Name: "Weekend Top-Up",
		Validity: campaign.ValidityPeriod{
			StartsAt: fixedTime.Add(-time.Hour),
			EndsAt:   fixedTime.Add(14 * 24 * time.Hour),
		},
		DefaultDiscount:    campaign.NewPercentageDiscount(decimal.NewFromInt(10)),
		DefaultTicketCount: 2,
		Strategy:           campaign.StrategyOnDemand,
	}, fixedClock, func() string { return "camp-1" })
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	c, err = c.ChangeStatus(campaign.StatusActive, "", fixedTime)
	if err != nil {
		t.Fatalf("activate campaign: %v", err)
	}
	return c
}

func newTestCoupon(t *testing.T, opts GenerateOptions) Coupon {
	t.Helper()
	cp, err := Generate(activeCampaign(t), opts, fixedClock, func() string { return "cpn-1" }, staticCode("FP-TEST-0001"))
	if err != nil {
		t.Fatalf("generate coupon: %v", err)
	}
	return cp.ClearPending()
}

func validContext() PurchaseContext {
	return PurchaseContext{
		UserID:    "user-1",
		StationID: "st-1",
		FuelType:  "DIESEL",
		Amount:    decimal.NewFromInt(40),
		AsOf:      fixedTime,
	}
}

func TestGenerateUsesCampaignDefaults(t *testing.T) {
	cp, err := Generate(activeCampaign(t), GenerateOptions{}, fixedClock, func() string { return "cpn-1" }, staticCode("FP-AAAA-1111"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if cp.Code != "FP-AAAA-1111" {
		t.Fatalf("expected injected code, got %q", cp.Code)
	}
	if cp.Discount.Type != campaign.DiscountTypePercentage || !cp.Discount.Value.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected campaign default discount, got %+v", cp.Discount)
	}
	if cp.TicketCount != 2 {
		t.Fatalf("expected campaign default ticket count 2, got %d", cp.TicketCount)
	}
	if cp.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", cp.Status)
	}
	evs := cp.PendingEvents()
	if len(evs) != 1 || evs[0].Type != event.TypeCouponGenerated {
		t.Fatalf("expected one coupon.generated event, got %v", evs)
	}
}

func TestGenerateHonorsOverrides(t *testing.T) {
	override := campaign.NewFixedDiscount(decimal.NewFromInt(20))
	tickets := 5
	cp := newTestCoupon(t, GenerateOptions{OverrideDiscount: &override, OverrideTickets: &tickets})

	if cp.Discount.Type != campaign.DiscountTypeFixedAmount {
		t.Fatalf("expected overridden discount type, got %s", cp.Discount.Type)
	}
	if cp.TicketCount != 5 {
		t.Fatalf("expected overridden ticket count 5, got %d", cp.TicketCount)
	}
}

func TestGenerateRequiresEligibleCampaign(t *testing.T) {
	c := activeCampaign(t)
	c, err := c.ChangeStatus(campaign.StatusPaused, "maintenance", fixedTime)
	if err != nil {
		t.Fatalf("pause campaign: %v", err)
	}
	if _, err := Generate(c, GenerateOptions{}, fixedClock, func() string { return "x" }, staticCode("C")); !errors.Is(err, xerrors.ErrCapacityExceeded) {
		t.Fatalf("expected generation rejection, got %v", err)
	}
}

func TestValidateOrderedReasons(t *testing.T) {
	minAmt := decimal.NewFromInt(20)
	maxAmt := decimal.NewFromInt(100)

	tests := []struct {
		name   string
		mutate func(*Coupon)
		ctx    func(*PurchaseContext)
		want   ValidationReason
	}{
		{"used status first", func(c *Coupon) { c.Status = StatusUsed }, nil, ReasonAlreadyUsed},
		{"void status first", func(c *Coupon) { c.Status = StatusVoid }, nil, ReasonVoided},
		{
			// Expired status wins even when the fuel type is also disallowed.
			"expired before fuel type",
			func(c *Coupon) {
				c.Status = StatusExpired
				c.Applicability.AllowedFuelTypes = []string{"PETROL"}
			},
			nil,
			ReasonExpired,
		},
		{
			"window expired before fuel type",
			func(c *Coupon) {
				c.ValidUntil = fixedTime.Add(-time.Minute)
				c.Applicability.AllowedFuelTypes = []string{"PETROL"}
			},
			nil,
			ReasonExpired,
		},
		{
			"not yet valid",
			func(c *Coupon) { c.ValidFrom = fixedTime.Add(time.Hour) },
			nil,
			ReasonNotYetValid,
		},
		{
			"below minimum before fuel type",
			func(c *Coupon) {
				c.Applicability.MinPurchaseAmount = decimal.NewNullDecimal(minAmt)
				c.Applicability.AllowedFuelTypes = []string{"PETROL"}
			},
			func(pc *PurchaseContext) { pc.Amount = decimal.NewFromInt(10) },
			ReasonBelowMinPurchase,
		},
		{
			"above maximum",
			func(c *Coupon) { c.Applicability.MaxPurchaseAmount = decimal.NewNullDecimal(maxAmt) },
			func(pc *PurchaseContext) { pc.Amount = decimal.NewFromInt(500) },
			ReasonAboveMaxPurchase,
		},
		{
			"fuel type not allowed",
			func(c *Coupon) { c.Applicability.AllowedFuelTypes = []string{"PETROL"} },
			nil,
			ReasonFuelTypeNotAllowed,
		},
		{
			"station not in allow list",
			func(c *Coupon) { c.Applicability.AllowedStationIDs = []string{"st-9"} },
			nil,
			ReasonStationNotAllowed,
		},
		{
			"station excluded",
			func(c *Coupon) { c.Applicability.ExcludedStationIDs = []string{"st-1"} },
			nil,
			ReasonStationExcluded,
		},
		{
			"bound to another user",
			func(c *Coupon) { c.BoundUserID = "someone-else" },
			nil,
			ReasonWrongUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := newTestCoupon(t, GenerateOptions{})
			tt.mutate(&cp)
			pc := validContext()
			if tt.ctx != nil {
				tt.ctx(&pc)
			}

			err := cp.Validate(pc)
			if err == nil {
				t.Fatalf("expected validation failure %s, got nil", tt.want)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Reason != tt.want {
				t.Fatalf("expected first-failure reason %s, got %s", tt.want, verr.Reason)
			}
			if !errors.Is(err, xerrors.ErrValidationFailed) {
				t.Fatalf("validation error must unwrap to ErrValidationFailed")
			}
		})
	}
}

func TestValidatePasses(t *testing.T) {
	cp := newTestCoupon(t, GenerateOptions{})
	if err := cp.Validate(validContext()); err != nil {
		t.Fatalf("expected valid coupon, got %v", err)
	}
}

func TestRedeemExactlyOnce(t *testing.T) {
	cp := newTestCoupon(t, GenerateOptions{})

	used, err := cp.Redeem("red-1", "user-1", fixedTime)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if used.Status != StatusUsed || used.RedemptionID != "red-1" {
		t.Fatalf("redeem did not bind redemption: %+v", used)
	}
	evs := used.PendingEvents()
	if len(evs) != 1 || evs[0].Type != event.TypeCouponRedeemed {
		t.Fatalf("expected one coupon.redeemed event, got %v", evs)
	}

	if _, err := used.Redeem("red-2", "user-2", fixedTime); !errors.Is(err, xerrors.ErrAlreadyRedeemed) {
		t.Fatalf("second redeem must fail with ErrAlreadyRedeemed, got %v", err)
	}
	if used.RedemptionID != "red-1" {
		t.Fatalf("failed redeem mutated the coupon")
	}
}

func TestRedeemRequiresActive(t *testing.T) {
	cp := newTestCoupon(t, GenerateOptions{})
	cp.Status = StatusExpired
	if _, err := cp.Redeem("red-1", "user-1", fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	cp := newTestCoupon(t, GenerateOptions{})

	if _, changed := cp.Expire(cp.ValidUntil.Add(-time.Minute)); changed {
		t.Fatalf("expire before valid-until must be a no-op")
	}

	expired, changed := cp.Expire(cp.ValidUntil.Add(time.Minute))
	if !changed || expired.Status != StatusExpired {
		t.Fatalf("expected EXPIRED, got %s (changed=%v)", expired.Status, changed)
	}

	if _, changed := expired.Expire(cp.ValidUntil.Add(2 * time.Minute)); changed {
		t.Fatalf("expiring an already expired coupon must be a no-op")
	}
}

func TestVoid(t *testing.T) {
	cp := newTestCoupon(t, GenerateOptions{})

	voided, err := cp.Void("printed in error", fixedTime)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != StatusVoid {
		t.Fatalf("expected VOID, got %s", voided.Status)
	}
	evs := voided.PendingEvents()
	if len(evs) != 1 || evs[0].Type != event.TypeCouponVoided {
		t.Fatalf("expected one coupon.voided event, got %v", evs)
	}
	if evs[0].Payload["reason"] != "printed in error" {
		t.Fatalf("void reason not carried: %v", evs[0].Payload)
	}

	if _, err := voided.Void("again", fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}
