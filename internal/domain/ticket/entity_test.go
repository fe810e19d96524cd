package ticket

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/event"
	xerrors "fuelpoints-service/internal/pkg/errors"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func mintOne(t *testing.T) RaffleTicket {
	t.Helper()
	tickets := mintBatch(t, 1)
	return tickets[0].ClearPending()
}

func mintBatch(t *testing.T, count int) []RaffleTicket {
	t.Helper()
	seq := 0
	tickets, err := Mint(MintInput{
		OwnerUserID:  "user-1",
		RedemptionID: "red-1",
		Source:       SourceCouponBase,
		Count:        count,
		FirstNumber:  100,
		ExpiresAt:    fixedTime.Add(90 * 24 * time.Hour),
	}, fixedClock, func() string {
		seq++
		return fmt.Sprintf("tkt-%d", seq)
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tickets
}

func TestMintBatch(t *testing.T) {
	tickets := mintBatch(t, 3)

	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	for i, tk := range tickets {
		if tk.Status != StatusActive {
			t.Fatalf("ticket %d not ACTIVE: %s", i, tk.Status)
		}
		if tk.TicketNumber != int64(100+i) {
			t.Fatalf("ticket %d has number %d, want %d", i, tk.TicketNumber, 100+i)
		}
		evs := tk.PendingEvents()
		if len(evs) != 1 || evs[0].Type != event.TypeRaffleTicketGenerated {
			t.Fatalf("ticket %d should carry one ticket.generated event, got %v", i, evs)
		}
	}
}

func TestMintValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MintInput)
	}{
		{"zero count", func(in *MintInput) { in.Count = 0 }},
		{"unknown source", func(in *MintInput) { in.Source = "MYSTERY" }},
		{"missing owner", func(in *MintInput) { in.OwnerUserID = "" }},
		{"missing redemption", func(in *MintInput) { in.RedemptionID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := MintInput{OwnerUserID: "u", RedemptionID: "r", Source: SourceCouponBase, Count: 1}
			tt.mutate(&in)
			if _, err := Mint(in, fixedClock, func() string { return "x" }); !errors.Is(err, xerrors.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestUseAndMarkWon(t *testing.T) {
	tk := mintOne(t)

	used, err := tk.Use("raf-1", fixedTime)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if used.Status != StatusUsed || used.RaffleID != "raf-1" {
		t.Fatalf("unexpected ticket after use: %+v", used)
	}

	won, err := used.MarkWon(fixedTime)
	if err != nil {
		t.Fatalf("mark won: %v", err)
	}
	if won.Status != StatusWon {
		t.Fatalf("expected WON, got %s", won.Status)
	}

	// WON only from USED.
	if _, err := tk.MarkWon(fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("ACTIVE -> WON must fail, got %v", err)
	}
	if _, err := won.Use("raf-2", fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("WON ticket must not be usable, got %v", err)
	}
}

func TestTransferKeepsActiveSemantics(t *testing.T) {
	tk := mintOne(t)

	moved, err := tk.Transfer("user-2", 3, fixedTime)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.OwnerUserID != "user-2" || moved.Status != StatusTransferred || moved.TransferCount != 1 {
		t.Fatalf("unexpected ticket after transfer: %+v", moved)
	}
	if !moved.Usable() {
		t.Fatalf("transferred ticket must keep active semantics")
	}
	evs := moved.PendingEvents()
	if len(evs) != 1 || evs[0].Type != event.TypeTicketTransferred {
		t.Fatalf("expected one ticket.transferred event, got %v", evs)
	}

	// A transferred ticket can still be consumed by a draw.
	if _, err := moved.Use("raf-1", fixedTime); err != nil {
		t.Fatalf("use after transfer: %v", err)
	}
}

func TestTransferLimit(t *testing.T) {
	tk := mintOne(t)

	var err error
	for i, owner := range []string{"user-2", "user-3"} {
		tk, err = tk.Transfer(owner, 2, fixedTime)
		if err != nil {
			t.Fatalf("transfer %d: %v", i+1, err)
		}
	}
	if _, err := tk.Transfer("user-4", 2, fixedTime); !errors.Is(err, xerrors.ErrTransferLimitReached) {
		t.Fatalf("expected ErrTransferLimitReached, got %v", err)
	}
}

func TestTransferValidation(t *testing.T) {
	tk := mintOne(t)
	if _, err := tk.Transfer("", 3, fixedTime); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("empty owner: expected ErrInvalidInput, got %v", err)
	}
	if _, err := tk.Transfer("user-1", 3, fixedTime); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("self transfer: expected ErrInvalidInput, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	tk := mintOne(t)

	if _, changed := tk.Expire(tk.ExpiresAt.Add(-time.Hour)); changed {
		t.Fatalf("expire before expiry must be a no-op")
	}

	expired, changed := tk.Expire(tk.ExpiresAt.Add(time.Hour))
	if !changed || expired.Status != StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", expired.Status)
	}
	if _, err := expired.Use("raf-1", fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("expired ticket must not be usable, got %v", err)
	}
}

func TestCancelAndSuspend(t *testing.T) {
	tk := mintOne(t)

	cancelled, err := tk.Cancel(fixedTime)
	if err != nil || cancelled.Status != StatusCancelled {
		t.Fatalf("cancel: %v status %s", err, cancelled.Status)
	}
	if _, err := cancelled.Suspend(fixedTime); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("cancelled ticket must not be suspendable, got %v", err)
	}

	suspended, err := tk.Suspend(fixedTime)
	if err != nil || suspended.Status != StatusSuspended {
		t.Fatalf("suspend: %v status %s", err, suspended.Status)
	}
}
