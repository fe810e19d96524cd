package redemption

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/domain/redemption"
	"fuelpoints-service/internal/domain/station"
	"fuelpoints-service/internal/domain/ticket"
	"fuelpoints-service/internal/events"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCouponStore struct {
	mu      sync.Mutex
	coupons map[string]coupon.Coupon
}

func (f *fakeCouponStore) GetByCode(_ context.Context, code string) (coupon.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.coupons[code]
	if !ok {
		return coupon.Coupon{}, xerrors.Wrap(xerrors.ErrNotFound, code)
	}
	return cp, nil
}

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]campaign.Campaign
}

func (f *fakeCampaignStore) GetByID(_ context.Context, id string) (campaign.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return campaign.Campaign{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return c, nil
}

type fakeStationStore struct {
	stations map[string]station.Station
	mu       sync.Mutex
	seq      int64
}

func (f *fakeStationStore) GetByID(_ context.Context, id string) (station.Station, error) {
	st, ok := f.stations[id]
	if !ok {
		return station.Station{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return st, nil
}

func (f *fakeStationStore) NextReferenceSeq(_ context.Context, _ string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq, nil
}

// fakeStore guards the one-redemption-per-coupon invariant under a mutex, the
// way the SQL layer guards it with an optimistic version check.
type fakeStore struct {
	mu          sync.Mutex
	coupons     *fakeCouponStore
	campaigns   *fakeCampaignStore
	redemptions map[string]redemption.Redemption
	tickets     map[string][]ticket.RaffleTicket
	nextTicket  int64
	usage       map[string]int
	lastUse     map[string]time.Time
}

func newFakeStore(coupons *fakeCouponStore, campaigns *fakeCampaignStore) *fakeStore {
	return &fakeStore{
		coupons:     coupons,
		campaigns:   campaigns,
		redemptions: make(map[string]redemption.Redemption),
		tickets:     make(map[string][]ticket.RaffleTicket),
		usage:       make(map[string]int),
		lastUse:     make(map[string]time.Time),
	}
}

func (f *fakeStore) SaveRedemption(_ context.Context, cp coupon.Coupon, expectedVersion int64, r redemption.Redemption, tickets []ticket.RaffleTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons.mu.Lock()
	defer f.coupons.mu.Unlock()

	stored := f.coupons.coupons[cp.Code]
	if stored.Status != coupon.StatusActive || stored.Version != expectedVersion {
		return xerrors.Wrap(xerrors.ErrAlreadyRedeemed, cp.Code)
	}
	cp.Version = expectedVersion + 1
	f.coupons.coupons[cp.Code] = cp
	f.redemptions[r.ID] = r
	f.tickets[r.ID] = tickets
	f.usage[r.CampaignID+"/"+r.UserID]++
	f.lastUse[r.CampaignID+"/"+r.UserID] = r.RedeemedAt

	// Mirror the SQL transaction: the campaign usage counter and version
	// move with the redemption commit.
	f.campaigns.mu.Lock()
	c := f.campaigns.campaigns[r.CampaignID]
	c.UsedCouponCount++
	c.Version++
	f.campaigns.campaigns[r.CampaignID] = c
	f.campaigns.mu.Unlock()
	return nil
}

func (f *fakeStore) SaveMultiplier(_ context.Context, r redemption.Redemption, tickets []ticket.RaffleTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.redemptions[r.ID]
	if !ok {
		return xerrors.Wrap(xerrors.ErrNotFound, r.ID)
	}
	if stored.Multiplier != 0 {
		return xerrors.Wrap(xerrors.ErrMultiplierAlreadyApplied, r.ID)
	}
	f.redemptions[r.ID] = r
	f.tickets[r.ID] = append(f.tickets[r.ID], tickets...)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (redemption.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.redemptions[id]
	if !ok {
		return redemption.Redemption{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return r, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string, _, _ int) ([]redemption.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redemption.Redemption
	for _, r := range f.redemptions {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, r redemption.Redemption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redemptions[r.ID] = r
	return nil
}

func (f *fakeStore) UserUsage(_ context.Context, campaignID, userID string) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := campaignID + "/" + userID
	count := f.usage[key]
	if last, ok := f.lastUse[key]; ok {
		return count, &last, nil
	}
	return count, nil, nil
}

func (f *fakeStore) AllocateTicketNumbers(_ context.Context, _ string, count int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.nextTicket + 1
	f.nextTicket += int64(count)
	return first, nil
}

func (f *fakeStore) CountTickets(_ context.Context, redemptionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets[redemptionID]), nil
}

func (f *fakeStore) ListSince(_ context.Context, _ time.Time, _ int) ([]redemption.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redemption.Redemption
	for _, r := range f.redemptions {
		out = append(out, r)
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	coupons   *fakeCouponStore
	campaigns *fakeCampaignStore
	store     *fakeStore
	campaign  campaign.Campaign
}

func newFixture(t *testing.T, usage campaign.UsageRules) *fixture {
	t.Helper()
	c, err := campaign.Create(campaign.CreateInput{
		Name:               "March Fuel Promo",
		Validity:           campaign.ValidityPeriod{StartsAt: fixedTime.Add(-24 * time.Hour), EndsAt: fixedTime.Add(24 * time.Hour)},
		DefaultDiscount:    campaign.NewPercentageDiscount(decimal.NewFromInt(10)),
		DefaultTicketCount: 2,
		Strategy:           campaign.StrategyOnDemand,
		Usage:              usage,
	}, func() time.Time { return fixedTime.Add(-24 * time.Hour) }, func() string { return "cmp-1" })
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	c, err = c.ChangeStatus(campaign.StatusActive, "", fixedTime.Add(-23*time.Hour))
	if err != nil {
		t.Fatalf("activate campaign: %v", err)
	}
	c = c.ClearPending()

	cp, err := coupon.Generate(c, coupon.GenerateOptions{}, func() time.Time { return fixedTime.Add(-time.Hour) },
		func() string { return "cpn-1" }, func() (string, error) { return "FP-AAAA-BBBB-CCCC", nil })
	if err != nil {
		t.Fatalf("generate coupon: %v", err)
	}
	cp = cp.ClearPending()

	coupons := &fakeCouponStore{coupons: map[string]coupon.Coupon{cp.Code: cp}}
	campaigns := &fakeCampaignStore{campaigns: map[string]campaign.Campaign{c.ID: c}}
	store := newFakeStore(coupons, campaigns)
	stations := &fakeStationStore{stations: map[string]station.Station{
		"stn-1": {ID: "stn-1", Name: "Nairobi West", Prefix: "NBO", Active: true},
	}}

	svc := NewService(coupons, campaigns,
		stations, store, events.Nop{}, Policy{MaxAdMultiplier: 5, TicketValidityDays: 90}, zap.NewNop())
	svc.now = func() time.Time { return fixedTime }
	var idMu sync.Mutex
	seq := 0
	svc.idGen = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return &fixture{svc: svc, coupons: coupons, campaigns: campaigns, store: store, campaign: c}
}

func validRequest() *RedeemRequest {
	return &RedeemRequest{
		Code:       "FP-AAAA-BBBB-CCCC",
		UserID:     "user-1",
		StationID:  "stn-1",
		EmployeeID: "emp-1",
		FuelType:   "PETROL_95",
		Amount:     "50.00",
	}
}

func TestRedeemCoupon(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})

	res, err := fx.svc.RedeemCoupon(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.Redemption.Status != redemption.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Redemption.Status)
	}
	if got := res.Redemption.DiscountAmount.String(); got != "5" {
		t.Fatalf("discount = %s, want 5", got)
	}
	if len(res.Tickets) != 2 {
		t.Fatalf("expected 2 base tickets, got %d", len(res.Tickets))
	}
	for _, tk := range res.Tickets {
		if tk.Source != ticket.SourceCouponBase || tk.OwnerUserID != "user-1" {
			t.Fatalf("unexpected ticket %+v", tk)
		}
	}
	if pfx := res.Redemption.Reference[:4]; pfx != "NBO-" {
		t.Fatalf("reference %q does not carry the station prefix", res.Redemption.Reference)
	}

	// The same coupon cannot go through twice.
	if _, err := fx.svc.RedeemCoupon(context.Background(), validRequest()); !errors.Is(err, xerrors.ErrValidationFailed) {
		t.Fatalf("second redeem: expected validation failure, got %v", err)
	}
}

func TestRedeemCouponValidationFailure(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})

	req := validRequest()
	req.Amount = "not-a-number"
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	req = validRequest()
	req.StationID = "stn-missing"
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown station, got %v", err)
	}

	// Nothing was persisted by the failed attempts.
	if n := len(fx.store.redemptions); n != 0 {
		t.Fatalf("failed redemptions must not persist, found %d", n)
	}
}

func TestRedeemCouponExactlyOnceUnderContention(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.RedeemCoupon(context.Background(), validRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, xerrors.ErrAlreadyRedeemed), errors.Is(err, xerrors.ErrValidationFailed):
		default:
			t.Fatalf("unexpected error under contention: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 successful redemption, got %d", succeeded)
	}
	if n := len(fx.store.redemptions); n != 1 {
		t.Fatalf("expected 1 persisted redemption, got %d", n)
	}
}

func TestUsageRules(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{MaxUsesPerUser: 1})

	if _, err := fx.svc.RedeemCoupon(context.Background(), validRequest()); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	// A fresh coupon for the same user hits the per-user cap.
	cp, err := coupon.Generate(fx.campaign, coupon.GenerateOptions{}, func() time.Time { return fixedTime },
		func() string { return "cpn-2" }, func() (string, error) { return "FP-DDDD-EEEE-FFFF", nil })
	if err != nil {
		t.Fatalf("generate second coupon: %v", err)
	}
	fx.coupons.coupons[cp.Code] = cp.ClearPending()

	req := validRequest()
	req.Code = cp.Code
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); !errors.Is(err, xerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on per-user cap, got %v", err)
	}
}

func TestCampaignTotalUsesCap(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{MaxUses: 1})

	if _, err := fx.svc.RedeemCoupon(context.Background(), validRequest()); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	// The cap is campaign-wide: a different user with a fresh coupon is
	// still turned away.
	cp, err := coupon.Generate(fx.campaign, coupon.GenerateOptions{}, func() time.Time { return fixedTime },
		func() string { return "cpn-2" }, func() (string, error) { return "FP-DDDD-EEEE-FFFF", nil })
	if err != nil {
		t.Fatalf("generate second coupon: %v", err)
	}
	fx.coupons.coupons[cp.Code] = cp.ClearPending()

	req := validRequest()
	req.Code = cp.Code
	req.UserID = "user-2"
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); !errors.Is(err, xerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on campaign cap, got %v", err)
	}
	if n := len(fx.store.redemptions); n != 1 {
		t.Fatalf("capped campaign persisted %d redemptions, want 1", n)
	}
}

func TestRedeemAdvancesCampaignVersion(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})
	before := fx.campaigns.campaigns[fx.campaign.ID]

	if _, err := fx.svc.RedeemCoupon(context.Background(), validRequest()); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// The usage bump rides the redemption commit and moves the version, so
	// a status change holding a pre-redemption snapshot loses its
	// optimistic check instead of writing the counter back down.
	after := fx.campaigns.campaigns[fx.campaign.ID]
	if after.UsedCouponCount != before.UsedCouponCount+1 {
		t.Fatalf("used count = %d, want %d", after.UsedCouponCount, before.UsedCouponCount+1)
	}
	if after.Version != before.Version+1 {
		t.Fatalf("version = %d, want %d", after.Version, before.Version+1)
	}
}

func TestCooldown(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{CooldownMinutes: 30})

	if _, err := fx.svc.RedeemCoupon(context.Background(), validRequest()); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	cp, err := coupon.Generate(fx.campaign, coupon.GenerateOptions{}, func() time.Time { return fixedTime },
		func() string { return "cpn-2" }, func() (string, error) { return "FP-DDDD-EEEE-FFFF", nil })
	if err != nil {
		t.Fatalf("generate second coupon: %v", err)
	}
	fx.coupons.coupons[cp.Code] = cp.ClearPending()

	req := validRequest()
	req.Code = cp.Code
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); !errors.Is(err, xerrors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited during cooldown, got %v", err)
	}

	// Past the cooldown the redemption goes through.
	fx.svc.now = func() time.Time { return fixedTime.Add(31 * time.Minute) }
	if _, err := fx.svc.RedeemCoupon(context.Background(), req); err != nil {
		t.Fatalf("redeem after cooldown: %v", err)
	}
}

func TestApplyAdMultiplier(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})

	res, err := fx.svc.RedeemCoupon(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	boosted, err := fx.svc.ApplyAdMultiplier(context.Background(), res.Redemption.ID, 3)
	if err != nil {
		t.Fatalf("apply multiplier: %v", err)
	}
	if boosted.Multiplier != 3 || len(boosted.Tickets) != 4 {
		t.Fatalf("multiplier %d with %d extra tickets, want 3 / 4", boosted.Multiplier, len(boosted.Tickets))
	}
	for _, tk := range boosted.Tickets {
		if tk.Source != ticket.SourceAdMultiplier {
			t.Fatalf("extra ticket has source %s", tk.Source)
		}
	}

	total, err := fx.store.CountTickets(context.Background(), res.Redemption.ID)
	if err != nil || total != 6 {
		t.Fatalf("total tickets = %d (%v), want 6", total, err)
	}

	if _, err := fx.svc.ApplyAdMultiplier(context.Background(), res.Redemption.ID, 2); !errors.Is(err, xerrors.ErrMultiplierAlreadyApplied) {
		t.Fatalf("second multiplier: expected ErrMultiplierAlreadyApplied, got %v", err)
	}
	if total, _ = fx.store.CountTickets(context.Background(), res.Redemption.ID); total != 6 {
		t.Fatalf("failed multiplier minted tickets: %d", total)
	}
}

func TestReconcile(t *testing.T) {
	fx := newFixture(t, campaign.UsageRules{})

	res, err := fx.svc.RedeemCoupon(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	entries, err := fx.svc.Reconcile(context.Background(), fixedTime.Add(-time.Hour), 100)
	if err != nil || len(entries) != 0 {
		t.Fatalf("clean state should reconcile empty, got %v (%v)", entries, err)
	}

	// Simulate a short mint.
	fx.store.mu.Lock()
	fx.store.tickets[res.Redemption.ID] = fx.store.tickets[res.Redemption.ID][:1]
	fx.store.mu.Unlock()

	entries, err = fx.svc.Reconcile(context.Background(), fixedTime.Add(-time.Hour), 100)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(entries) != 1 || entries[0].Expected != 2 || entries[0].Actual != 1 {
		t.Fatalf("unexpected reconciliation report: %+v", entries)
	}
}
