package app

import (
	"context"
	"time"

	campaignService "fuelpoints-service/internal/service/campaign"
	couponService "fuelpoints-service/internal/service/coupon"
	raffleService "fuelpoints-service/internal/service/raffle"
	ticketService "fuelpoints-service/internal/service/ticket"

	"go.uber.org/zap"
)

const sweepBatch = 500

// sweeper runs the periodic lifecycle jobs: completing lapsed campaigns,
// expiring coupons and tickets past their validity, and lapsing unclaimed
// prizes. Each pass is idempotent, so a missed or doubled tick is harmless.
type sweeper struct {
	campaigns *campaignService.Service
	coupons   *couponService.Service
	tickets   *ticketService.Service
	raffles   *raffleService.Service
	logger    *zap.Logger
	interval  time.Duration
}

func newSweeper(campaigns *campaignService.Service, coupons *couponService.Service,
	tickets *ticketService.Service, raffles *raffleService.Service, logger *zap.Logger) *sweeper {
	return &sweeper{
		campaigns: campaigns,
		coupons:   coupons,
		tickets:   tickets,
		raffles:   raffles,
		logger:    logger,
		interval:  5 * time.Minute,
	}
}

func (s *sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	now := time.Now()

	if n, err := s.campaigns.CompleteExpired(ctx, now); err != nil {
		s.logger.Warn("campaign sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("campaigns completed by sweep", zap.Int("count", n))
	}

	if _, err := s.coupons.ExpireDue(ctx, now, sweepBatch); err != nil {
		s.logger.Warn("coupon sweep failed", zap.Error(err))
	}

	if _, err := s.tickets.ExpireDue(ctx, now, sweepBatch); err != nil {
		s.logger.Warn("ticket sweep failed", zap.Error(err))
	}

	if _, err := s.raffles.ExpireClaims(ctx, sweepBatch); err != nil {
		s.logger.Warn("prize claim sweep failed", zap.Error(err))
	}
}
