package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/events"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"go.uber.org/zap"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCampaignStore struct {
	campaigns map[string]campaign.Campaign
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{campaigns: make(map[string]campaign.Campaign)}
}

func (f *fakeCampaignStore) Create(_ context.Context, c campaign.Campaign) error {
	if _, dup := f.campaigns[c.ID]; dup {
		return xerrors.Wrap(xerrors.ErrConflict, c.ID)
	}
	f.campaigns[c.ID] = c.ClearPending()
	return nil
}

func (f *fakeCampaignStore) GetByID(_ context.Context, id string) (campaign.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return campaign.Campaign{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return c, nil
}

func (f *fakeCampaignStore) Update(_ context.Context, c campaign.Campaign, expectedVersion int64) error {
	stored, ok := f.campaigns[c.ID]
	if !ok {
		return xerrors.Wrap(xerrors.ErrNotFound, c.ID)
	}
	if stored.Version != expectedVersion {
		return xerrors.Wrap(xerrors.ErrConcurrencyConflict, c.ID)
	}
	c.Version = expectedVersion + 1
	f.campaigns[c.ID] = c.ClearPending()
	return nil
}

func (f *fakeCampaignStore) List(_ context.Context, status campaign.Status, limit, _ int) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, c := range f.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newCampaignService() (*Service, *fakeCampaignStore) {
	store := newFakeCampaignStore()
	svc := NewService(store, events.Nop{}, zap.NewNop())
	svc.now = func() time.Time { return fixedTime }
	seq := 0
	svc.idGen = func() string {
		seq++
		return fmt.Sprintf("cmp-%d", seq)
	}
	return svc, store
}

func validRequest() *campaign.CreateCampaignRequest {
	return &campaign.CreateCampaignRequest{
		Name:               "Diesel March",
		StartsAt:           fixedTime.Add(time.Hour),
		EndsAt:             fixedTime.Add(30 * 24 * time.Hour),
		DiscountType:       string(campaign.DiscountTypePercentage),
		DiscountValue:      "10",
		DefaultTicketCount: 2,
		GenerationStrategy: string(campaign.StrategyPreGenerated),
		TargetCouponCount:  1000,
	}
}

func TestCreateCampaign(t *testing.T) {
	svc, store := newCampaignService()

	created, err := svc.CreateCampaign(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if created.Status != campaign.StatusDraft {
		t.Fatalf("new campaign status = %s, want DRAFT", created.Status)
	}
	if created.DefaultDiscount.Type != campaign.DiscountTypePercentage || created.DefaultDiscount.Value.String() != "10" {
		t.Fatalf("discount not parsed: %+v", created.DefaultDiscount)
	}
	if _, ok := store.campaigns[created.ID]; !ok {
		t.Fatalf("campaign not persisted")
	}
}

func TestCreateCampaignRejectsMalformedDiscount(t *testing.T) {
	svc, store := newCampaignService()

	req := validRequest()
	req.DiscountValue = "ten percent"
	if _, err := svc.CreateCampaign(context.Background(), req); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(store.campaigns) != 0 {
		t.Fatalf("rejected campaign must not persist")
	}
}

func TestCreateCampaignRejectsInvertedPurchaseBounds(t *testing.T) {
	svc, _ := newCampaignService()

	req := validRequest()
	req.MinPurchaseAmount = "100"
	req.MaxPurchaseAmount = "50"
	if _, err := svc.CreateCampaign(context.Background(), req); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestChangeStatus(t *testing.T) {
	svc, store := newCampaignService()
	created, err := svc.CreateCampaign(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	activated, err := svc.ChangeStatus(context.Background(), created.ID, campaign.StatusActive, "")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Status != campaign.StatusActive {
		t.Fatalf("status = %s, want ACTIVE", activated.Status)
	}
	if got := store.campaigns[created.ID].Version; got != created.Version+1 {
		t.Fatalf("version = %d, want %d", got, created.Version+1)
	}

	// Same-to-same is a no-op and must not bump the version.
	if _, err := svc.ChangeStatus(context.Background(), created.ID, campaign.StatusActive, ""); err != nil {
		t.Fatalf("repeat activate: %v", err)
	}
	if got := store.campaigns[created.ID].Version; got != created.Version+1 {
		t.Fatalf("no-op change bumped version to %d", got)
	}

	// COMPLETED is terminal.
	if _, err := svc.ChangeStatus(context.Background(), created.ID, campaign.StatusCompleted, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.ChangeStatus(context.Background(), created.ID, campaign.StatusActive, ""); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestCompleteExpired(t *testing.T) {
	svc, store := newCampaignService()

	lapsed, err := svc.CreateCampaign(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if _, err := svc.ChangeStatus(context.Background(), lapsed.ID, campaign.StatusActive, ""); err != nil {
		t.Fatalf("activate: %v", err)
	}

	running := validRequest()
	running.Name = "Still Running"
	running.EndsAt = fixedTime.Add(365 * 24 * time.Hour)
	current, err := svc.CreateCampaign(context.Background(), running)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if _, err := svc.ChangeStatus(context.Background(), current.ID, campaign.StatusActive, ""); err != nil {
		t.Fatalf("activate: %v", err)
	}

	completed, err := svc.CompleteExpired(context.Background(), fixedTime.Add(31*24*time.Hour))
	if err != nil || completed != 1 {
		t.Fatalf("expected 1 completed, got %d (%v)", completed, err)
	}
	if got := store.campaigns[lapsed.ID].Status; got != campaign.StatusCompleted {
		t.Fatalf("lapsed campaign status = %s, want COMPLETED", got)
	}
	if got := store.campaigns[current.ID].Status; got != campaign.StatusActive {
		t.Fatalf("in-window campaign was completed")
	}

	// Idempotent: a second sweep finds nothing.
	completed, err = svc.CompleteExpired(context.Background(), fixedTime.Add(32*24*time.Hour))
	if err != nil || completed != 0 {
		t.Fatalf("second sweep should complete 0, got %d (%v)", completed, err)
	}
}
