package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedemptionDuration tracks the latency of the redemption engine.
	RedemptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "fuelpoints_redemption_duration_seconds",
			Help: "Duration of coupon redemption requests in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"outcome"}, // completed, rejected, conflict, error
	)

	// RedemptionsTotal counts redemption attempts by outcome.
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelpoints_redemptions_total",
			Help: "Total coupon redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TicketsMintedTotal counts minted raffle tickets by source.
	TicketsMintedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelpoints_tickets_minted_total",
			Help: "Total raffle tickets minted by source",
		},
		[]string{"source"}, // COUPON_BASE or AD_MULTIPLIER
	)

	// CouponsGeneratedTotal counts generated coupons per campaign.
	CouponsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelpoints_coupons_generated_total",
			Help: "Total coupons generated per campaign",
		},
		[]string{"campaign_id"},
	)

	// RaffleDrawsTotal counts completed raffle draws.
	RaffleDrawsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fuelpoints_raffle_draws_total",
			Help: "Total completed raffle draws",
		},
	)

	// EventPublishFailures counts events that could not be published to the
	// stream; these are logged and dropped, never blocking the write path.
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fuelpoints_event_publish_failures_total",
			Help: "Total domain events that failed to publish",
		},
	)
)

// ObserveRedemption records one redemption attempt with its latency.
func ObserveRedemption(outcome string, seconds float64) {
	RedemptionsTotal.WithLabelValues(outcome).Inc()
	RedemptionDuration.WithLabelValues(outcome).Observe(seconds)
}
