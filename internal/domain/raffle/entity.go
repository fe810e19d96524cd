package raffle

import (
	"fmt"
	"math/rand"
	"time"

	"fuelpoints-service/internal/domain/event"
	"fuelpoints-service/internal/domain/ticket"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusOpen      Status = "OPEN"
	StatusDrawn     Status = "DRAWN"
	StatusSettled   Status = "SETTLED"
	StatusCancelled Status = "CANCELLED"
)

type ClaimStatus string

const (
	ClaimPending ClaimStatus = "PENDING"
	ClaimClaimed ClaimStatus = "CLAIMED"
	ClaimExpired ClaimStatus = "EXPIRED"
)

// Prize is a tier within a raffle draw.
type Prize struct {
	Tier        int             `json:"tier"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	WinnerCount int             `json:"winner_count"`
}

// Winner records a ticket picked for a prize tier.
type Winner struct {
	ID           string          `json:"id"`
	RaffleID     string          `json:"raffle_id"`
	UserID       string          `json:"user_id"`
	TicketID     string          `json:"ticket_id"`
	TicketNumber int64           `json:"ticket_number"`
	PrizeTier    int             `json:"prize_tier"`
	PrizeAmount  decimal.Decimal `json:"prize_amount"`
	ClaimStatus  ClaimStatus     `json:"claim_status"`
	WonAt        time.Time       `json:"won_at"`
	ClaimedAt    *time.Time      `json:"claimed_at,omitempty"`
}

// Claim marks a pending prize as claimed.
func (w Winner) Claim(now time.Time) (Winner, error) {
	if w.ClaimStatus != ClaimPending {
		return Winner{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("winner %s claim is %s", w.ID, w.ClaimStatus))
	}
	ts := now.UTC()
	w.ClaimStatus = ClaimClaimed
	w.ClaimedAt = &ts
	return w, nil
}

// ExpireClaim lapses a pending prize once the claim deadline passed.
func (w Winner) ExpireClaim(asOf time.Time, deadline time.Duration) (Winner, bool) {
	if w.ClaimStatus != ClaimPending || !asOf.After(w.WonAt.Add(deadline)) {
		return w, false
	}
	w.ClaimStatus = ClaimExpired
	return w, true
}

// Raffle is a periodic prize draw consuming accumulated tickets.
type Raffle struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      Status    `json:"status"`
	Prizes      []Prize   `json:"prizes"`
	TicketCount int       `json:"ticket_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	pending []event.Event
}

// CreateInput describes a new raffle period.
type CreateInput struct {
	Name        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Prizes      []Prize
}

// Create validates and schedules a raffle.
func Create(input CreateInput, now func() time.Time, idGen func() string) (Raffle, error) {
	if now == nil {
		now = time.Now
	}
	if input.Name == "" {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidInput, "raffle name is required")
	}
	if !input.PeriodStart.Before(input.PeriodEnd) {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidInput, "raffle period start must be before end")
	}
	if len(input.Prizes) == 0 {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidInput, "raffle needs at least one prize")
	}
	for _, p := range input.Prizes {
		if p.WinnerCount <= 0 {
			return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidInput,
				fmt.Sprintf("prize tier %d needs a positive winner count", p.Tier))
		}
	}

	ts := now().UTC()
	return Raffle{
		ID:          idGen(),
		Name:        input.Name,
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
		Status:      StatusScheduled,
		Prizes:      input.Prizes,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// Open admits tickets into the raffle.
func (r Raffle) Open(now time.Time) (Raffle, error) {
	if r.Status != StatusScheduled {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("raffle %s: %s -> OPEN", r.ID, r.Status))
	}
	r.Status = StatusOpen
	r.UpdatedAt = now.UTC()
	return r, nil
}

// Draw picks winners from the given usable tickets. Tickets are shuffled with
// the injected source of randomness so tests stay deterministic; prize tiers
// are filled in order until tickets run out. The caller is responsible for
// consuming the tickets (USED, winners WON) and persisting everything in one
// transaction.
func (r Raffle) Draw(tickets []ticket.RaffleTicket, rng *rand.Rand, now time.Time, idGen func() string) (Raffle, []Winner, error) {
	if r.Status != StatusOpen {
		return Raffle{}, nil, xerrors.Wrap(xerrors.ErrRaffleNotOpen, fmt.Sprintf("raffle %s is %s", r.ID, r.Status))
	}
	if len(tickets) == 0 {
		return Raffle{}, nil, xerrors.Wrap(xerrors.ErrInvalidInput, "no tickets to draw from")
	}
	for _, tk := range tickets {
		if !tk.Usable() {
			return Raffle{}, nil, xerrors.Wrap(xerrors.ErrInvalidInput,
				fmt.Sprintf("ticket %s is %s, not usable", tk.ID, tk.Status))
		}
	}

	ts := now.UTC()
	order := rng.Perm(len(tickets))
	winners := make([]Winner, 0)
	next := 0
	for _, prize := range r.Prizes {
		for i := 0; i < prize.WinnerCount && next < len(order); i++ {
			tk := tickets[order[next]]
			next++
			winners = append(winners, Winner{
				ID:           idGen(),
				RaffleID:     r.ID,
				UserID:       tk.OwnerUserID,
				TicketID:     tk.ID,
				TicketNumber: tk.TicketNumber,
				PrizeTier:    prize.Tier,
				PrizeAmount:  prize.Amount,
				ClaimStatus:  ClaimPending,
				WonAt:        ts,
			})
		}
	}

	r.Status = StatusDrawn
	r.TicketCount = len(tickets)
	r.UpdatedAt = ts
	r.pending = appendEvent(r.pending, event.New(event.TypeRaffleDrawn, "raffle", r.ID, ts, map[string]interface{}{
		"ticket_count": len(tickets),
		"winner_count": len(winners),
	}))
	for _, w := range winners {
		r.pending = appendEvent(r.pending, event.New(event.TypeWinnerPicked, "raffle", r.ID, ts, map[string]interface{}{
			"winner_id":  w.ID,
			"user_id":    w.UserID,
			"ticket_id":  w.TicketID,
			"prize_tier": w.PrizeTier,
		}))
	}
	return r, winners, nil
}

// Settle closes out a drawn raffle once prizes are handed over.
func (r Raffle) Settle(now time.Time) (Raffle, error) {
	if r.Status != StatusDrawn {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("raffle %s: %s -> SETTLED", r.ID, r.Status))
	}
	r.Status = StatusSettled
	r.UpdatedAt = now.UTC()
	return r, nil
}

// Cancel aborts a raffle that has not been drawn.
func (r Raffle) Cancel(now time.Time) (Raffle, error) {
	if r.Status != StatusScheduled && r.Status != StatusOpen {
		return Raffle{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("raffle %s: %s -> CANCELLED", r.ID, r.Status))
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now.UTC()
	return r, nil
}

// PendingEvents returns the events accumulated since the last drain.
func (r Raffle) PendingEvents() []event.Event {
	return r.pending
}

// ClearPending returns the raffle with an empty event buffer.
func (r Raffle) ClearPending() Raffle {
	r.pending = nil
	return r
}

func appendEvent(evs []event.Event, ev event.Event) []event.Event {
	out := make([]event.Event, len(evs), len(evs)+1)
	copy(out, evs)
	return append(out, ev)
}
