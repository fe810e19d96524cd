package redemption

import (
	"context"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/domain/event"
	"fuelpoints-service/internal/domain/redemption"
	"fuelpoints-service/internal/domain/station"
	"fuelpoints-service/internal/domain/ticket"
	"fuelpoints-service/internal/events"
	"fuelpoints-service/internal/metrics"
	xerrors "fuelpoints-service/internal/pkg/errors"
	"fuelpoints-service/internal/pkg/refnum"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Policy bundles the operator-tunable limits of the redemption engine.
type Policy struct {
	MaxAdMultiplier    int
	MaxTicketTransfers int
	TicketValidityDays int
}

// CouponStore is the slice of coupon persistence the engine reads from.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (coupon.Coupon, error)
}

// CampaignStore provides the live campaign for usage-rule checks.
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (campaign.Campaign, error)
}

// StationStore resolves stations and allocates per-day reference sequences.
type StationStore interface {
	GetByID(ctx context.Context, id string) (station.Station, error)
	NextReferenceSeq(ctx context.Context, stationID string, day time.Time) (int64, error)
}

// Store is the engine's transactional port. SaveRedemption persists the
// consumed coupon, the campaign usage bump, the redemption and the base
// ticket batch atomically; the coupon update is optimistic on version and a
// lost race surfaces as ErrAlreadyRedeemed. SaveMultiplier guards the
// at-most-once multiplier at the same boundary.
type Store interface {
	SaveRedemption(ctx context.Context, cp coupon.Coupon, expectedVersion int64, r redemption.Redemption, tickets []ticket.RaffleTicket) error
	SaveMultiplier(ctx context.Context, r redemption.Redemption, tickets []ticket.RaffleTicket) error
	GetByID(ctx context.Context, id string) (redemption.Redemption, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]redemption.Redemption, error)
	Update(ctx context.Context, r redemption.Redemption) error
	UserUsage(ctx context.Context, campaignID, userID string) (int, *time.Time, error)
	AllocateTicketNumbers(ctx context.Context, ownerUserID string, count int) (int64, error)
	CountTickets(ctx context.Context, redemptionID string) (int, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]redemption.Redemption, error)
}

// RedeemRequest is the point-of-sale payload for redeeming a coupon.
type RedeemRequest struct {
	Code         string `json:"code" binding:"required"`
	UserID       string `json:"user_id" binding:"required"`
	StationID    string `json:"station_id" binding:"required"`
	EmployeeID   string `json:"employee_id"`
	FuelType     string `json:"fuel_type" binding:"required"`
	FuelQuantity string `json:"fuel_quantity"`
	UnitPrice    string `json:"unit_price"`
	Amount       string `json:"amount" binding:"required"`
}

// RedeemResult is the engine's answer: the persisted redemption plus the
// freshly minted base tickets.
type RedeemResult struct {
	Redemption redemption.Redemption `json:"redemption"`
	Tickets    []ticket.RaffleTicket `json:"tickets"`
}

// MultiplierResult reports the applied multiplier and the extra tickets.
type MultiplierResult struct {
	Redemption redemption.Redemption `json:"redemption"`
	Multiplier int                   `json:"multiplier"`
	Tickets    []ticket.RaffleTicket `json:"tickets"`
}

// ReconciliationEntry flags a redemption whose persisted ticket count does
// not match what its base count and multiplier imply.
type ReconciliationEntry struct {
	RedemptionID string `json:"redemption_id"`
	Expected     int    `json:"expected"`
	Actual       int    `json:"actual"`
}

type Service struct {
	coupons   CouponStore
	campaigns CampaignStore
	stations  StationStore
	store     Store
	publisher events.Publisher
	logger    *zap.Logger
	policy    Policy
	now       func() time.Time
	idGen     func() string
}

func NewService(coupons CouponStore, campaigns CampaignStore, stations StationStore, store Store, publisher events.Publisher, policy Policy, logger *zap.Logger) *Service {
	if policy.TicketValidityDays <= 0 {
		policy.TicketValidityDays = 90
	}
	return &Service{
		coupons:   coupons,
		campaigns: campaigns,
		stations:  stations,
		store:     store,
		publisher: publisher,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
		idGen:     func() string { return ulid.Make().String() },
	}
}

// RedeemCoupon runs the full engine sequence: validate the coupon against the
// purchase, enforce campaign usage rules, consume the coupon exactly once,
// record the redemption with its reference number and mint the base tickets.
// Everything is persisted in one transaction; a coupon lost to a concurrent
// redemption fails with ErrAlreadyRedeemed and changes nothing.
func (s *Service) RedeemCoupon(ctx context.Context, req *RedeemRequest) (RedeemResult, error) {
	started := s.now()
	res, err := s.redeem(ctx, req)
	metrics.ObserveRedemption(outcomeOf(err), s.now().Sub(started).Seconds())
	return res, err
}

func (s *Service) redeem(ctx context.Context, req *RedeemRequest) (RedeemResult, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return RedeemResult{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed amount %q", req.Amount))
	}
	quantity, unitPrice, err := parseFuelFigures(req.FuelQuantity, req.UnitPrice)
	if err != nil {
		return RedeemResult{}, err
	}

	cp, err := s.coupons.GetByCode(ctx, req.Code)
	if err != nil {
		return RedeemResult{}, err
	}

	now := s.now()
	pc := coupon.PurchaseContext{
		UserID:    req.UserID,
		StationID: req.StationID,
		FuelType:  req.FuelType,
		Amount:    amount,
		AsOf:      now,
	}
	if err := cp.Validate(pc); err != nil {
		return RedeemResult{}, err
	}
	if err := s.checkUsageRules(ctx, cp.CampaignID, req.UserID, now); err != nil {
		return RedeemResult{}, err
	}

	redemptionID := s.idGen()
	redeemed, err := cp.Redeem(redemptionID, req.UserID, now)
	if err != nil {
		return RedeemResult{}, err
	}

	reference, err := s.buildReference(ctx, req.StationID, req.FuelType, now)
	if err != nil {
		return RedeemResult{}, err
	}

	r, err := redemption.New(redemption.NewInput{
		Coupon:        redeemed,
		Purchase:      pc,
		EmployeeID:    req.EmployeeID,
		FuelQuantity:  quantity,
		FuelUnitPrice: unitPrice,
		Reference:     reference,
	}, func() time.Time { return now }, func() string { return redemptionID })
	if err != nil {
		return RedeemResult{}, err
	}

	tickets, err := s.mintTickets(ctx, req.UserID, redemptionID, ticket.SourceCouponBase, r.BaseTicketCount, now)
	if err != nil {
		return RedeemResult{}, err
	}

	if err := s.store.SaveRedemption(ctx, redeemed, cp.Version, r, tickets); err != nil {
		s.logger.Warn("redemption not persisted",
			zap.String("code", req.Code),
			zap.String("redemption_id", redemptionID),
			zap.Error(err))
		return RedeemResult{}, err
	}

	s.publishDrained(ctx, redeemed.PendingEvents(), r.PendingEvents())
	for i := range tickets {
		s.publishDrained(ctx, tickets[i].PendingEvents())
		tickets[i] = tickets[i].ClearPending()
	}
	metrics.TicketsMintedTotal.WithLabelValues(string(ticket.SourceCouponBase)).Add(float64(len(tickets)))

	s.logger.Info("coupon redeemed",
		zap.String("code", req.Code),
		zap.String("redemption_id", redemptionID),
		zap.String("reference", reference),
		zap.String("discount", r.DiscountAmount.String()),
		zap.Int("base_tickets", len(tickets)))
	return RedeemResult{Redemption: r.ClearPending(), Tickets: tickets}, nil
}

// ApplyAdMultiplier amplifies a redemption's tickets after a verified ad
// engagement. The multiplier lands at most once; extra tickets are minted as
// AD_MULTIPLIER source in the same transaction that records the multiplier.
func (s *Service) ApplyAdMultiplier(ctx context.Context, redemptionID string, multiplier int) (MultiplierResult, error) {
	r, err := s.store.GetByID(ctx, redemptionID)
	if err != nil {
		return MultiplierResult{}, err
	}

	now := s.now()
	boosted, extra, err := r.ApplyAdMultiplier(multiplier, s.policy.MaxAdMultiplier, now)
	if err != nil {
		return MultiplierResult{}, err
	}

	tickets, err := s.mintTickets(ctx, r.UserID, r.ID, ticket.SourceAdMultiplier, extra, now)
	if err != nil {
		return MultiplierResult{}, err
	}

	if err := s.store.SaveMultiplier(ctx, boosted, tickets); err != nil {
		return MultiplierResult{}, err
	}

	for i := range tickets {
		s.publishDrained(ctx, tickets[i].PendingEvents())
		tickets[i] = tickets[i].ClearPending()
	}
	metrics.TicketsMintedTotal.WithLabelValues(string(ticket.SourceAdMultiplier)).Add(float64(len(tickets)))

	s.logger.Info("ad multiplier applied",
		zap.String("redemption_id", redemptionID),
		zap.Int("multiplier", boosted.Multiplier),
		zap.Int("extra_tickets", len(tickets)))
	return MultiplierResult{Redemption: boosted.ClearPending(), Multiplier: boosted.Multiplier, Tickets: tickets}, nil
}

// GetRedemption returns one redemption by id.
func (s *Service) GetRedemption(ctx context.Context, id string) (redemption.Redemption, error) {
	return s.store.GetByID(ctx, id)
}

// ListByUser pages through a user's redemption history.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]redemption.Redemption, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit, offset)
}

// Void reverses a redemption, e.g. when the underlying purchase is refunded.
// Tickets already minted are handled by the ticket sweep, not here.
func (s *Service) Void(ctx context.Context, id, reason string) (redemption.Redemption, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return redemption.Redemption{}, err
	}
	voided, err := r.Void(reason, s.now())
	if err != nil {
		return redemption.Redemption{}, err
	}
	if err := s.store.Update(ctx, voided); err != nil {
		return redemption.Redemption{}, err
	}
	s.publishDrained(ctx, voided.PendingEvents())
	s.logger.Info("redemption voided", zap.String("redemption_id", id), zap.String("reason", reason))
	return voided.ClearPending(), nil
}

// Reconcile compares each recent redemption's persisted ticket count against
// the count implied by its base tickets and multiplier, and reports the
// mismatches (short mints from partial failures).
func (s *Service) Reconcile(ctx context.Context, since time.Time, limit int) ([]ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	recent, err := s.store.ListSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	var mismatches []ReconciliationEntry
	for _, r := range recent {
		if r.Status != redemption.StatusCompleted {
			continue
		}
		actual, err := s.store.CountTickets(ctx, r.ID)
		if err != nil {
			return mismatches, err
		}
		if expected := r.ExpectedTicketCount(); actual != expected {
			mismatches = append(mismatches, ReconciliationEntry{RedemptionID: r.ID, Expected: expected, Actual: actual})
			s.logger.Warn("ticket count mismatch",
				zap.String("redemption_id", r.ID),
				zap.Int("expected", expected),
				zap.Int("actual", actual))
		}
	}
	return mismatches, nil
}

func (s *Service) checkUsageRules(ctx context.Context, campaignID, userID string, now time.Time) error {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Usage.MaxUses > 0 && c.UsedCouponCount >= c.Usage.MaxUses {
		return xerrors.Wrap(xerrors.ErrForbidden,
			fmt.Sprintf("campaign reached its limit of %d redemptions", c.Usage.MaxUses))
	}
	if c.Usage.MaxUsesPerUser <= 0 && c.Usage.CooldownMinutes <= 0 {
		return nil
	}

	count, lastAt, err := s.store.UserUsage(ctx, campaignID, userID)
	if err != nil {
		return err
	}
	if c.Usage.MaxUsesPerUser > 0 && count >= c.Usage.MaxUsesPerUser {
		return xerrors.Wrap(xerrors.ErrForbidden,
			fmt.Sprintf("user reached the campaign limit of %d redemptions", c.Usage.MaxUsesPerUser))
	}
	if c.Usage.CooldownMinutes > 0 && lastAt != nil {
		nextAllowed := lastAt.Add(time.Duration(c.Usage.CooldownMinutes) * time.Minute)
		if now.Before(nextAllowed) {
			return xerrors.Wrap(xerrors.ErrRateLimited,
				fmt.Sprintf("cooldown active until %s", nextAllowed.Format(time.RFC3339)))
		}
	}
	return nil
}

func (s *Service) buildReference(ctx context.Context, stationID, fuelType string, now time.Time) (string, error) {
	st, err := s.stations.GetByID(ctx, stationID)
	if err != nil {
		return "", err
	}
	if !st.Active {
		return "", xerrors.Wrap(xerrors.ErrForbidden, fmt.Sprintf("station %s is inactive", stationID))
	}
	if !st.Dispenses(fuelType) {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput,
			fmt.Sprintf("station %s does not dispense %s", stationID, fuelType))
	}
	seq, err := s.stations.NextReferenceSeq(ctx, stationID, now)
	if err != nil {
		return "", err
	}
	return refnum.Generate(st.Prefix, now, seq)
}

func (s *Service) mintTickets(ctx context.Context, userID, redemptionID string, source ticket.SourceType, count int, now time.Time) ([]ticket.RaffleTicket, error) {
	if count <= 0 {
		return nil, nil
	}
	first, err := s.store.AllocateTicketNumbers(ctx, userID, count)
	if err != nil {
		return nil, err
	}
	return ticket.Mint(ticket.MintInput{
		OwnerUserID:  userID,
		RedemptionID: redemptionID,
		Source:       source,
		Count:        count,
		FirstNumber:  first,
		ExpiresAt:    now.AddDate(0, 0, s.policy.TicketValidityDays),
	}, func() time.Time { return now }, s.idGen)
}

func (s *Service) publishDrained(ctx context.Context, batches ...[]event.Event) {
	for _, evs := range batches {
		events.PublishAll(ctx, s.publisher, s.logger, evs)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case xerrors.Is(err, xerrors.ErrValidationFailed),
		xerrors.Is(err, xerrors.ErrForbidden),
		xerrors.Is(err, xerrors.ErrRateLimited),
		xerrors.Is(err, xerrors.ErrInvalidInput):
		return "rejected"
	case xerrors.Is(err, xerrors.ErrAlreadyRedeemed),
		xerrors.Is(err, xerrors.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

func parseFuelFigures(quantity, unitPrice string) (decimal.Decimal, decimal.Decimal, error) {
	var q, p decimal.Decimal
	var err error
	if quantity != "" {
		if q, err = decimal.NewFromString(quantity); err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed fuel quantity")
		}
	}
	if unitPrice != "" {
		if p, err = decimal.NewFromString(unitPrice); err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed unit price")
		}
	}
	return q, p, nil
}
