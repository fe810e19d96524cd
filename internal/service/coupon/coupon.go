package coupon

import (
	"context"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/events"
	"fuelpoints-service/internal/metrics"
	"fuelpoints-service/internal/pkg/couponcode"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CampaignStore is the slice of campaign persistence this service needs.
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (campaign.Campaign, error)
}

// Store is the persistence port for coupons. SaveBatch persists the coupons
// and the campaign's bumped generation counter in one transaction; it fails
// with ErrConcurrencyConflict when the campaign version moved underneath.
type Store interface {
	SaveBatch(ctx context.Context, c campaign.Campaign, expectedVersion int64, coupons []coupon.Coupon) error
	GetByCode(ctx context.Context, code string) (coupon.Coupon, error)
	Update(ctx context.Context, cp coupon.Coupon, expectedVersion int64) error
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]coupon.Coupon, error)
	ListExpiring(ctx context.Context, asOf time.Time, limit int) ([]coupon.Coupon, error)
}

// ValidationResult is the read-only answer to "would this coupon apply here".
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	Detail         string `json:"detail,omitempty"`
	DiscountAmount string `json:"discount_amount,omitempty"`
	FinalAmount    string `json:"final_amount,omitempty"`
}

type Service struct {
	campaigns CampaignStore
	coupons   Store
	publisher events.Publisher
	logger    *zap.Logger
	codes     couponcode.Generator
	now       func() time.Time
	idGen     func() string
}

func NewService(campaigns CampaignStore, coupons Store, publisher events.Publisher, codes couponcode.Generator, logger *zap.Logger) *Service {
	return &Service{
		campaigns: campaigns,
		coupons:   coupons,
		publisher: publisher,
		logger:    logger,
		codes:     codes,
		now:       time.Now,
		idGen:     func() string { return ulid.Make().String() },
	}
}

// GenerateBatch mints count coupons for a campaign. The campaign counter is
// bumped first so a batch that would cross the target cap is rejected whole;
// partial batches are never persisted.
func (s *Service) GenerateBatch(ctx context.Context, campaignID string, req *campaign.GenerateCouponsRequest) ([]coupon.Coupon, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	opts := coupon.GenerateOptions{OverrideTickets: req.OverrideTickets}
	if req.OverrideDiscount != "" {
		v, err := decimal.NewFromString(req.OverrideDiscount)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed override discount")
		}
		d := campaign.DiscountValue{Type: campaign.DiscountType(req.OverrideType), Value: v}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		opts.OverrideDiscount = &d
	}

	bumped, err := c.RecordCouponsGenerated(req.Count, s.now())
	if err != nil {
		return nil, err
	}

	coupons := make([]coupon.Coupon, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		cp, err := coupon.Generate(c, opts, s.now, s.idGen, s.codes.Generate)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, cp)
	}

	if err := s.coupons.SaveBatch(ctx, bumped, c.Version, coupons); err != nil {
		s.logger.Error("save coupon batch failed",
			zap.String("campaign_id", campaignID),
			zap.Int("count", req.Count),
			zap.Error(err))
		return nil, err
	}
	metrics.CouponsGeneratedTotal.WithLabelValues(campaignID).Add(float64(len(coupons)))
	for i := range coupons {
		events.PublishAll(ctx, s.publisher, s.logger, coupons[i].PendingEvents())
		coupons[i] = coupons[i].ClearPending()
	}

	s.logger.Info("coupon batch generated",
		zap.String("campaign_id", campaignID),
		zap.Int("count", len(coupons)))
	return coupons, nil
}

// GetByCode looks a coupon up by its printed code.
func (s *Service) GetByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return s.coupons.GetByCode(ctx, code)
}

// ListByCampaign pages through a campaign's coupons.
func (s *Service) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]coupon.Coupon, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.coupons.ListByCampaign(ctx, campaignID, limit, offset)
}

// Validate answers whether the coupon would apply to the given purchase and
// previews the discount. It never mutates anything.
func (s *Service) Validate(ctx context.Context, code string, pc coupon.PurchaseContext) (ValidationResult, error) {
	cp, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return ValidationResult{}, err
	}
	if pc.AsOf.IsZero() {
		pc.AsOf = s.now()
	}

	if err := cp.Validate(pc); err != nil {
		var verr *coupon.ValidationError
		if xerrors.As(err, &verr) {
			return ValidationResult{Valid: false, Reason: string(verr.Reason), Detail: verr.Detail}, nil
		}
		return ValidationResult{}, err
	}

	discount, final := cp.Discount.Apply(pc.Amount)
	return ValidationResult{
		Valid:          true,
		DiscountAmount: discount.String(),
		FinalAmount:    final.String(),
	}, nil
}

// Void withdraws a coupon from circulation.
func (s *Service) Void(ctx context.Context, code, reason string) (coupon.Coupon, error) {
	cp, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return coupon.Coupon{}, err
	}
	voided, err := cp.Void(reason, s.now())
	if err != nil {
		return coupon.Coupon{}, err
	}
	if err := s.coupons.Update(ctx, voided, cp.Version); err != nil {
		return coupon.Coupon{}, err
	}
	events.PublishAll(ctx, s.publisher, s.logger, voided.PendingEvents())
	s.logger.Info("coupon voided", zap.String("code", code), zap.String("reason", reason))
	return voided.ClearPending(), nil
}

// ExpireDue sweeps ACTIVE coupons whose validity window closed. Returns how
// many were expired; conflicts from concurrent redemptions are skipped, the
// next sweep picks them up if still relevant.
func (s *Service) ExpireDue(ctx context.Context, asOf time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	due, err := s.coupons.ListExpiring(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, cp := range due {
		changed, ok := cp.Expire(asOf)
		if !ok {
			continue
		}
		if err := s.coupons.Update(ctx, changed, cp.Version); err != nil {
			if xerrors.Is(err, xerrors.ErrConcurrencyConflict) {
				continue
			}
			return expired, err
		}
		events.PublishAll(ctx, s.publisher, s.logger, changed.PendingEvents())
		expired++
	}
	if expired > 0 {
		s.logger.Info("coupons expired", zap.Int("count", expired))
	}
	return expired, nil
}
