package campaign

import (
	"context"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/events"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence port for campaigns. Update applies optimistic
// concurrency on the campaign version and fails with ErrConcurrencyConflict
// when the stored version moved.
type Store interface {
	Create(ctx context.Context, c campaign.Campaign) error
	GetByID(ctx context.Context, id string) (campaign.Campaign, error)
	Update(ctx context.Context, c campaign.Campaign, expectedVersion int64) error
	List(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.Campaign, error)
}

type Service struct {
	store     Store
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
}

func NewService(store Store, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		idGen:     func() string { return ulid.Make().String() },
	}
}

// CreateCampaign builds a DRAFT campaign from the API payload and persists it.
func (s *Service) CreateCampaign(ctx context.Context, req *campaign.CreateCampaignRequest) (campaign.Campaign, error) {
	discount, err := parseDiscount(req.DiscountType, req.DiscountValue)
	if err != nil {
		return campaign.Campaign{}, err
	}
	applicability, err := parseApplicability(req)
	if err != nil {
		return campaign.Campaign{}, err
	}

	c, err := campaign.Create(campaign.CreateInput{
		Name:               req.Name,
		Description:        req.Description,
		Validity:           campaign.ValidityPeriod{StartsAt: req.StartsAt, EndsAt: req.EndsAt},
		DefaultDiscount:    discount,
		DefaultTicketCount: req.DefaultTicketCount,
		Strategy:           campaign.GenerationStrategy(req.GenerationStrategy),
		TargetCouponCount:  req.TargetCouponCount,
		Applicability:      applicability,
		Usage: campaign.UsageRules{
			MaxUses:         req.MaxUses,
			MaxUsesPerUser:  req.MaxUsesPerUser,
			CooldownMinutes: req.CooldownMinutes,
		},
		Metadata: req.Metadata,
	}, s.now, s.idGen)
	if err != nil {
		return campaign.Campaign{}, err
	}

	if err := s.store.Create(ctx, c); err != nil {
		s.logger.Error("create campaign failed", zap.Error(err))
		return campaign.Campaign{}, err
	}
	events.PublishAll(ctx, s.publisher, s.logger, c.PendingEvents())

	s.logger.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("name", c.Name),
		zap.String("strategy", string(c.Strategy)))
	return c.ClearPending(), nil
}

// ChangeStatus moves a campaign along its lifecycle under optimistic locking.
func (s *Service) ChangeStatus(ctx context.Context, id string, target campaign.Status, reason string) (campaign.Campaign, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return campaign.Campaign{}, err
	}

	changed, err := c.ChangeStatus(target, reason, s.now())
	if err != nil {
		return campaign.Campaign{}, err
	}
	if len(changed.PendingEvents()) == 0 {
		// Same-to-same request; nothing to persist.
		return changed, nil
	}

	if err := s.store.Update(ctx, changed, c.Version); err != nil {
		return campaign.Campaign{}, err
	}
	events.PublishAll(ctx, s.publisher, s.logger, changed.PendingEvents())

	s.logger.Info("campaign status changed",
		zap.String("campaign_id", id),
		zap.String("from", string(c.Status)),
		zap.String("to", string(target)))
	return changed.ClearPending(), nil
}

// GetCampaign returns one campaign by id.
func (s *Service) GetCampaign(ctx context.Context, id string) (campaign.Campaign, error) {
	return s.store.GetByID(ctx, id)
}

// ListCampaigns pages through campaigns, optionally filtered by status.
func (s *Service) ListCampaigns(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.List(ctx, status, limit, offset)
}

// GetMetrics derives the progress read model for a campaign.
func (s *Service) GetMetrics(ctx context.Context, id string) (campaign.Metrics, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return campaign.Metrics{}, err
	}
	return campaign.Metrics{
		CampaignID:           c.ID,
		Status:               c.Status,
		GeneratedCouponCount: c.GeneratedCouponCount,
		UsedCouponCount:      c.UsedCouponCount,
		TargetCouponCount:    c.TargetCouponCount,
		ProgressPercent:      c.ProgressPercent(),
		UsageRate:            c.UsageRate(),
	}, nil
}

// CompleteExpired sweeps ACTIVE and PAUSED campaigns whose validity window
// closed and completes them. Returns how many were transitioned.
func (s *Service) CompleteExpired(ctx context.Context, asOf time.Time) (int, error) {
	completed := 0
	for _, status := range []campaign.Status{campaign.StatusActive, campaign.StatusPaused} {
		batch, err := s.store.List(ctx, status, 100, 0)
		if err != nil {
			return completed, err
		}
		for _, c := range batch {
			if !asOf.After(c.Validity.EndsAt) {
				continue
			}
			changed, err := c.ChangeStatus(campaign.StatusCompleted, "validity period ended", asOf)
			if err != nil {
				return completed, err
			}
			if err := s.store.Update(ctx, changed, c.Version); err != nil {
				if xerrors.Is(err, xerrors.ErrConcurrencyConflict) {
					continue
				}
				return completed, err
			}
			events.PublishAll(ctx, s.publisher, s.logger, changed.PendingEvents())
			completed++
		}
	}
	return completed, nil
}

func parseDiscount(discountType, value string) (campaign.DiscountValue, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return campaign.DiscountValue{}, xerrors.Wrap(xerrors.ErrInvalidInput,
			fmt.Sprintf("malformed discount value %q", value))
	}
	d := campaign.DiscountValue{Type: campaign.DiscountType(discountType), Value: v}
	if err := d.Validate(); err != nil {
		return campaign.DiscountValue{}, err
	}
	return d, nil
}

func parseApplicability(req *campaign.CreateCampaignRequest) (campaign.ApplicabilityRules, error) {
	rules := campaign.ApplicabilityRules{
		AllowedFuelTypes:   req.AllowedFuelTypes,
		AllowedStationIDs:  req.AllowedStationIDs,
		ExcludedStationIDs: req.ExcludedStationIDs,
	}
	if req.MinPurchaseAmount != "" {
		v, err := decimal.NewFromString(req.MinPurchaseAmount)
		if err != nil {
			return campaign.ApplicabilityRules{}, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed min purchase amount")
		}
		rules.MinPurchaseAmount = decimal.NewNullDecimal(v)
	}
	if req.MaxPurchaseAmount != "" {
		v, err := decimal.NewFromString(req.MaxPurchaseAmount)
		if err != nil {
			return campaign.ApplicabilityRules{}, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed max purchase amount")
		}
		rules.MaxPurchaseAmount = decimal.NewNullDecimal(v)
	}
	if rules.MinPurchaseAmount.Valid && rules.MaxPurchaseAmount.Valid &&
		rules.MinPurchaseAmount.Decimal.GreaterThan(rules.MaxPurchaseAmount.Decimal) {
		return campaign.ApplicabilityRules{}, xerrors.Wrap(xerrors.ErrInvalidInput, "min purchase amount exceeds max")
	}
	return rules, nil
}
