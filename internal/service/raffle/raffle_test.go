package raffle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/raffle"
	"fuelpoints-service/internal/domain/ticket"
	"fuelpoints-service/internal/events"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"go.uber.org/zap"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	raffles map[string]raffle.Raffle
	winners map[string]raffle.Winner
	tickets map[string]ticket.RaffleTicket
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		raffles: make(map[string]raffle.Raffle),
		winners: make(map[string]raffle.Winner),
		tickets: make(map[string]ticket.RaffleTicket),
	}
}

func (f *fakeStore) Create(_ context.Context, r raffle.Raffle) error {
	f.raffles[r.ID] = r
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (raffle.Raffle, error) {
	r, ok := f.raffles[id]
	if !ok {
		return raffle.Raffle{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return r, nil
}

func (f *fakeStore) Update(_ context.Context, r raffle.Raffle) error {
	f.raffles[r.ID] = r
	return nil
}

func (f *fakeStore) List(_ context.Context, status raffle.Status, _, _ int) ([]raffle.Raffle, error) {
	var out []raffle.Raffle
	for _, r := range f.raffles {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveDraw(_ context.Context, r raffle.Raffle, winners []raffle.Winner, consumed []ticket.RaffleTicket) error {
	f.raffles[r.ID] = r.ClearPending()
	for _, w := range winners {
		f.winners[w.ID] = w
	}
	for _, tk := range consumed {
		f.tickets[tk.ID] = tk.ClearPending()
	}
	return nil
}

func (f *fakeStore) ListWinners(_ context.Context, raffleID string) ([]raffle.Winner, error) {
	var out []raffle.Winner
	for _, w := range f.winners {
		if w.RaffleID == raffleID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStore) GetWinner(_ context.Context, winnerID string) (raffle.Winner, error) {
	w, ok := f.winners[winnerID]
	if !ok {
		return raffle.Winner{}, xerrors.Wrap(xerrors.ErrNotFound, winnerID)
	}
	return w, nil
}

func (f *fakeStore) UpdateWinner(_ context.Context, w raffle.Winner) error {
	f.winners[w.ID] = w
	return nil
}

func (f *fakeStore) ListPendingWinners(_ context.Context, wonBefore time.Time, _ int) ([]raffle.Winner, error) {
	var out []raffle.Winner
	for _, w := range f.winners {
		if w.ClaimStatus == raffle.ClaimPending && w.WonAt.Before(wonBefore) {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeTicketStore struct {
	tickets []ticket.RaffleTicket
}

func (f *fakeTicketStore) ListUsableIssuedBetween(_ context.Context, _, _ time.Time, _ int) ([]ticket.RaffleTicket, error) {
	return f.tickets, nil
}

type recordingNotifier struct {
	notified []raffle.Winner
}

func (n *recordingNotifier) NotifyWinner(w raffle.Winner) {
	n.notified = append(n.notified, w)
}

func mintTickets(t *testing.T, count int) []ticket.RaffleTicket {
	t.Helper()
	if count == 0 {
		return nil
	}
	seq := 0
	tickets, err := ticket.Mint(ticket.MintInput{
		OwnerUserID:  "user-1",
		RedemptionID: "red-1",
		Source:       ticket.SourceCouponBase,
		Count:        count,
		FirstNumber:  1,
		ExpiresAt:    fixedTime.Add(24 * time.Hour),
	}, func() time.Time { return fixedTime.Add(-time.Hour) }, func() string {
		seq++
		return fmt.Sprintf("tkt-%d", seq)
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	for i := range tickets {
		tickets[i] = tickets[i].ClearPending()
	}
	return tickets
}

func newFixture(t *testing.T, ticketCount int) (*Service, *fakeStore, *recordingNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, &fakeTicketStore{tickets: mintTickets(t, ticketCount)},
		events.Nop{}, notifier, 30*24*time.Hour, zap.NewNop())
	svc.now = func() time.Time { return fixedTime }
	seq := 0
	svc.idGen = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.seed = func() int64 { return 42 }
	return svc, store, notifier
}

func scheduleAndOpen(t *testing.T, svc *Service) raffle.Raffle {
	t.Helper()
	r, err := svc.CreateRaffle(context.Background(), &CreateRaffleRequest{
		Name:        "Weekly Draw",
		PeriodStart: fixedTime.Add(-7 * 24 * time.Hour),
		PeriodEnd:   fixedTime,
		Prizes: []PrizeRequest{
			{Tier: 1, Description: "Fuel for a year", Amount: "1000.00", WinnerCount: 1},
			{Tier: 2, Description: "Free tank", Amount: "100.00", WinnerCount: 2},
		},
	})
	if err != nil {
		t.Fatalf("create raffle: %v", err)
	}
	opened, err := svc.OpenRaffle(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("open raffle: %v", err)
	}
	return opened
}

func TestRunDraw(t *testing.T) {
	svc, store, notifier := newFixture(t, 10)
	r := scheduleAndOpen(t, svc)

	drawn, winners, err := svc.RunDraw(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}
	if drawn.Status != raffle.StatusDrawn || drawn.TicketCount != 10 {
		t.Fatalf("unexpected raffle %+v", drawn)
	}
	if len(winners) != 3 {
		t.Fatalf("expected 3 winners, got %d", len(winners))
	}
	if len(notifier.notified) != 3 {
		t.Fatalf("expected 3 winner notifications, got %d", len(notifier.notified))
	}

	// Every entered ticket is consumed; winners are promoted to WON.
	used, won := 0, 0
	for _, tk := range store.tickets {
		switch tk.Status {
		case ticket.StatusUsed:
			used++
		case ticket.StatusWon:
			won++
		default:
			t.Fatalf("ticket %s left in %s", tk.ID, tk.Status)
		}
	}
	if used != 7 || won != 3 {
		t.Fatalf("used/won = %d/%d, want 7/3", used, won)
	}

	// A drawn raffle cannot be drawn again.
	if _, _, err := svc.RunDraw(context.Background(), r.ID); !errors.Is(err, xerrors.ErrRaffleNotOpen) {
		t.Fatalf("second draw: expected ErrRaffleNotOpen, got %v", err)
	}
}

func TestRunDrawWithoutTickets(t *testing.T) {
	svc, _, _ := newFixture(t, 0)
	r := scheduleAndOpen(t, svc)

	if _, _, err := svc.RunDraw(context.Background(), r.ID); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput with no tickets, got %v", err)
	}
}

func TestClaimPrize(t *testing.T) {
	svc, _, _ := newFixture(t, 5)
	r := scheduleAndOpen(t, svc)
	_, winners, err := svc.RunDraw(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	w := winners[0]

	if _, err := svc.ClaimPrize(context.Background(), w.ID, "someone-else"); !errors.Is(err, xerrors.ErrForbidden) {
		t.Fatalf("claim by wrong user: expected ErrForbidden, got %v", err)
	}

	claimed, err := svc.ClaimPrize(context.Background(), w.ID, w.UserID)
	if err != nil || claimed.ClaimStatus != raffle.ClaimClaimed {
		t.Fatalf("claim: %v %+v", err, claimed)
	}
	if _, err := svc.ClaimPrize(context.Background(), w.ID, w.UserID); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("double claim: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestExpireClaims(t *testing.T) {
	svc, store, _ := newFixture(t, 5)
	r := scheduleAndOpen(t, svc)
	_, winners, err := svc.RunDraw(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}

	// Nothing lapses inside the claim window.
	lapsed, err := svc.ExpireClaims(context.Background(), 100)
	if err != nil || lapsed != 0 {
		t.Fatalf("expected 0 lapsed, got %d (%v)", lapsed, err)
	}

	svc.now = func() time.Time { return fixedTime.Add(31 * 24 * time.Hour) }
	lapsed, err = svc.ExpireClaims(context.Background(), 100)
	if err != nil || lapsed != len(winners) {
		t.Fatalf("expected %d lapsed, got %d (%v)", len(winners), lapsed, err)
	}
	for _, w := range winners {
		stored, _ := store.GetWinner(context.Background(), w.ID)
		if stored.ClaimStatus != raffle.ClaimExpired {
			t.Fatalf("winner %s not expired: %s", w.ID, stored.ClaimStatus)
		}
	}
}

func TestSettleAndCancel(t *testing.T) {
	svc, _, _ := newFixture(t, 5)
	r := scheduleAndOpen(t, svc)

	if _, err := svc.SettleRaffle(context.Background(), r.ID); !errors.Is(err, xerrors.ErrInvalidStateTransition) {
		t.Fatalf("settle before draw: expected ErrInvalidStateTransition, got %v", err)
	}

	if _, _, err := svc.RunDraw(context.Background(), r.ID); err != nil {
		t.Fatalf("draw: %v", err)
	}
	settled, err := svc.SettleRaffle(context.Background(), r.ID)
	if err != nil || settled.Status != raffle.StatusSettled {
		t.Fatalf("settle: %v status %s", err, settled.Status)
	}

	other := scheduleAndOpen(t, svc)
	cancelled, err := svc.CancelRaffle(context.Background(), other.ID)
	if err != nil || cancelled.Status != raffle.StatusCancelled {
		t.Fatalf("cancel: %v status %s", err, cancelled.Status)
	}
}
