package ticket

import (
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"
)

type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusUsed        Status = "USED"
	StatusWon         Status = "WON"
	StatusExpired     Status = "EXPIRED"
	StatusCancelled   Status = "CANCELLED"
	StatusSuspended   Status = "SUSPENDED"
	StatusTransferred Status = "TRANSFERRED"
)

type SourceType string

const (
	SourceCouponBase   SourceType = "COUPON_BASE"
	SourceAdMultiplier SourceType = "AD_MULTIPLIER"
)

// RaffleTicket is a unit of entry into a prize draw. A ticket is owned by
// exactly one user at a time; transfers change ownership and bump the
// transfer counter.
type RaffleTicket struct {
	ID            string     `json:"id"`
	OwnerUserID   string     `json:"owner_user_id"`
	RedemptionID  string     `json:"redemption_id"`
	TicketNumber  int64      `json:"ticket_number"`
	Source        SourceType `json:"source"`
	Status        Status     `json:"status"`
	RaffleID      string     `json:"raffle_id,omitempty"`
	TransferCount int        `json:"transfer_count"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IssuedAt      time.Time  `json:"issued_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	pending []event.Event
}

// MintInput describes a batch of tickets minted from one redemption.
type MintInput struct {
	OwnerUserID  string
	RedemptionID string
	Source       SourceType
	Count        int
	// FirstNumber seeds the per-user sequential ticket numbering; the
	// persistence layer allocates it.
	FirstNumber int64
	ExpiresAt   time.Time
}

// Mint builds a batch of ACTIVE tickets, each carrying its own
// ticket.generated pending event so the event count always matches the
// minted count.
func Mint(input MintInput, now func() time.Time, idGen func() string) ([]RaffleTicket, error) {
	if now == nil {
		now = time.Now
	}
	if input.Count <= 0 {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "ticket count must be positive")
	}
	if input.Source != SourceCouponBase && input.Source != SourceAdMultiplier {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown ticket source %q", input.Source))
	}
	if input.OwnerUserID == "" || input.RedemptionID == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "ticket owner and redemption are required")
	}

	ts := now().UTC()
	tickets := make([]RaffleTicket, 0, input.Count)
	for i := 0; i < input.Count; i++ {
		tk := RaffleTicket{
			ID:           idGen(),
			OwnerUserID:  input.OwnerUserID,
			RedemptionID: input.RedemptionID,
			TicketNumber: input.FirstNumber + int64(i),
			Source:       input.Source,
			Status:       StatusActive,
			ExpiresAt:    input.ExpiresAt,
			IssuedAt:     ts,
			UpdatedAt:    ts,
		}
		tk.pending = appendEvent(nil, event.New(event.TypeRaffleTicketGenerated, "ticket", tk.ID, ts, map[string]interface{}{
			"owner_user_id": tk.OwnerUserID,
			"redemption_id": tk.RedemptionID,
			"ticket_number": tk.TicketNumber,
			"source":        string(tk.Source),
		}))
		tickets = append(tickets, tk)
	}
	return tickets, nil
}

// Usable reports whether the ticket still counts as a live raffle entry.
// TRANSFERRED tickets keep ACTIVE semantics under their new owner.
func (t RaffleTicket) Usable() bool {
	return t.Status == StatusActive || t.Status == StatusTransferred
}

// Use consumes the ticket in a raffle draw.
func (t RaffleTicket) Use(raffleID string, now time.Time) (RaffleTicket, error) {
	if !t.Usable() {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("ticket %s: %s -> USED", t.ID, t.Status))
	}
	t.Status = StatusUsed
	t.RaffleID = raffleID
	t.UpdatedAt = now.UTC()
	return t, nil
}

// MarkWon promotes a USED ticket to WON after the draw. WON is terminal and
// reachable only from USED.
func (t RaffleTicket) MarkWon(now time.Time) (RaffleTicket, error) {
	if t.Status != StatusUsed {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("ticket %s: %s -> WON", t.ID, t.Status))
	}
	t.Status = StatusWon
	t.UpdatedAt = now.UTC()
	return t, nil
}

// Expire moves a usable ticket past its expiry instant to EXPIRED; otherwise
// it is a no-op.
func (t RaffleTicket) Expire(asOf time.Time) (RaffleTicket, bool) {
	if !t.Usable() || !asOf.After(t.ExpiresAt) {
		return t, false
	}
	t.Status = StatusExpired
	t.UpdatedAt = asOf.UTC()
	t.pending = appendEvent(t.pending, event.New(event.TypeTicketExpired, "ticket", t.ID, asOf, nil))
	return t, true
}

// Cancel withdraws a usable ticket.
func (t RaffleTicket) Cancel(now time.Time) (RaffleTicket, error) {
	if !t.Usable() {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("ticket %s: %s -> CANCELLED", t.ID, t.Status))
	}
	t.Status = StatusCancelled
	t.UpdatedAt = now.UTC()
	return t, nil
}

// Suspend freezes a usable ticket pending an abuse investigation.
func (t RaffleTicket) Suspend(now time.Time) (RaffleTicket, error) {
	if !t.Usable() {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("ticket %s: %s -> SUSPENDED", t.ID, t.Status))
	}
	t.Status = StatusSuspended
	t.UpdatedAt = now.UTC()
	return t, nil
}

// Transfer hands the ticket to a new owner. The transfer counter bounds
// abuse: once it reaches maxTransfers (when positive) further transfers fail
// with ErrTransferLimitReached.
func (t RaffleTicket) Transfer(newOwnerID string, maxTransfers int, now time.Time) (RaffleTicket, error) {
	if !t.Usable() {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidStateTransition,
			fmt.Sprintf("ticket %s: %s -> TRANSFERRED", t.ID, t.Status))
	}
	if newOwnerID == "" || newOwnerID == t.OwnerUserID {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrInvalidInput, "transfer requires a different, non-empty owner")
	}
	if maxTransfers >= 1 && t.TransferCount >= maxTransfers {
		return RaffleTicket{}, xerrors.Wrap(xerrors.ErrTransferLimitReached,
			fmt.Sprintf("ticket %s transferred %d times", t.ID, t.TransferCount))
	}
	prevOwner := t.OwnerUserID
	t.OwnerUserID = newOwnerID
	t.Status = StatusTransferred
	t.TransferCount++
	t.UpdatedAt = now.UTC()
	t.pending = appendEvent(t.pending, event.New(event.TypeTicketTransferred, "ticket", t.ID, now, map[string]interface{}{
		"from_user_id":   prevOwner,
		"to_user_id":     newOwnerID,
		"transfer_count": t.TransferCount,
	}))
	return t, nil
}

// PendingEvents returns the events accumulated since the last drain.
func (t RaffleTicket) PendingEvents() []event.Event {
	return t.pending
}

// ClearPending returns the ticket with an empty event buffer.
func (t RaffleTicket) ClearPending() RaffleTicket {
	t.pending = nil
	return t
}

func appendEvent(evs []event.Event, ev event.Event) []event.Event {
	out := make([]event.Event, len(evs), len(evs)+1)
	copy(out, evs)
	return append(out, ev)
}
