package event

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of a domain event.
type Type string

// Campaign lifecycle events.
const (
	TypeCampaignCreated       Type = "campaign.created"
	TypeCampaignStatusChanged Type = "campaign.status_changed"
)

// Coupon lifecycle events.
const (
	TypeCouponGenerated Type = "coupon.generated"
	TypeCouponRedeemed  Type = "coupon.redeemed"
	TypeCouponExpired   Type = "coupon.expired"
	TypeCouponVoided    Type = "coupon.voided"
)

// Redemption and ticket events.
const (
	TypeRedemptionCompleted   Type = "redemption.completed"
	TypeRedemptionVoided      Type = "redemption.voided"
	TypeRaffleTicketGenerated Type = "ticket.generated"
	TypeTicketTransferred     Type = "ticket.transferred"
	TypeTicketExpired         Type = "ticket.expired"
)

// Raffle events.
const (
	TypeRaffleDrawn  Type = "raffle.drawn"
	TypeWinnerPicked Type = "raffle.winner_picked"
	TypePrizeClaimed Type = "raffle.prize_claimed"
)

// Event is an immutable fact produced by an aggregate state transition.
// Events accumulate on the aggregate's pending buffer and are drained by
// the orchestrating service exactly once per committed transaction.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh ULID identity.
func New(t Type, aggregateType, aggregateID string, occurredAt time.Time, payload map[string]interface{}) Event {
	return Event{
		ID:            ulid.Make().String(),
		Type:          t,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}
}

// Domain returns the prefix of the event type (e.g. "campaign", "ticket").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
