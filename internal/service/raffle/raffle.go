package raffle

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"

	"fuelpoints-service/internal/domain/event"
	"fuelpoints-service/internal/domain/raffle"
	"fuelpoints-service/internal/domain/ticket"
	"fuelpoints-service/internal/events"
	"fuelpoints-service/internal/metrics"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence port for raffles and winners. SaveDraw persists
// the drawn raffle, its winners and every consumed ticket in one transaction.
type Store interface {
	Create(ctx context.Context, r raffle.Raffle) error
	GetByID(ctx context.Context, id string) (raffle.Raffle, error)
	Update(ctx context.Context, r raffle.Raffle) error
	List(ctx context.Context, status raffle.Status, limit, offset int) ([]raffle.Raffle, error)
	SaveDraw(ctx context.Context, r raffle.Raffle, winners []raffle.Winner, consumed []ticket.RaffleTicket) error
	ListWinners(ctx context.Context, raffleID string) ([]raffle.Winner, error)
	GetWinner(ctx context.Context, winnerID string) (raffle.Winner, error)
	UpdateWinner(ctx context.Context, w raffle.Winner) error
	ListPendingWinners(ctx context.Context, wonBefore time.Time, limit int) ([]raffle.Winner, error)
}

// TicketStore supplies the usable tickets eligible for a draw.
type TicketStore interface {
	ListUsableIssuedBetween(ctx context.Context, from, to time.Time, limit int) ([]ticket.RaffleTicket, error)
}

// Notifier pushes winner announcements to connected clients.
type Notifier interface {
	NotifyWinner(w raffle.Winner)
}

// CreateRaffleRequest is the API payload for scheduling a draw.
type CreateRaffleRequest struct {
	Name        string         `json:"name" binding:"required"`
	PeriodStart time.Time      `json:"period_start" binding:"required"`
	PeriodEnd   time.Time      `json:"period_end" binding:"required"`
	Prizes      []PrizeRequest `json:"prizes" binding:"required,min=1"`
}

// PrizeRequest describes one prize tier; the amount travels as a string.
type PrizeRequest struct {
	Tier        int    `json:"tier" binding:"required"`
	Description string `json:"description"`
	Amount      string `json:"amount" binding:"required"`
	WinnerCount int    `json:"winner_count" binding:"required,min=1"`
}

type Service struct {
	store     Store
	tickets   TicketStore
	publisher events.Publisher
	notifier  Notifier
	logger    *zap.Logger
	claimTTL  time.Duration
	maxDraw   int
	now       func() time.Time
	idGen     func() string
	seed      func() int64
}

func NewService(store Store, tickets TicketStore, publisher events.Publisher, notifier Notifier, claimTTL time.Duration, logger *zap.Logger) *Service {
	if claimTTL <= 0 {
		claimTTL = 30 * 24 * time.Hour
	}
	return &Service{
		store:     store,
		tickets:   tickets,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		claimTTL:  claimTTL,
		maxDraw:   100000,
		now:       time.Now,
		idGen:     func() string { return ulid.Make().String() },
		seed:      cryptoSeed,
	}
}

// CreateRaffle schedules a raffle period with its prize tiers.
func (s *Service) CreateRaffle(ctx context.Context, req *CreateRaffleRequest) (raffle.Raffle, error) {
	prizes := make([]raffle.Prize, 0, len(req.Prizes))
	for _, p := range req.Prizes {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return raffle.Raffle{}, xerrors.Wrap(xerrors.ErrInvalidInput, "malformed prize amount")
		}
		prizes = append(prizes, raffle.Prize{
			Tier:        p.Tier,
			Description: p.Description,
			Amount:      amount,
			WinnerCount: p.WinnerCount,
		})
	}

	r, err := raffle.Create(raffle.CreateInput{
		Name:        req.Name,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Prizes:      prizes,
	}, s.now, s.idGen)
	if err != nil {
		return raffle.Raffle{}, err
	}
	if err := s.store.Create(ctx, r); err != nil {
		return raffle.Raffle{}, err
	}

	s.logger.Info("raffle scheduled",
		zap.String("raffle_id", r.ID),
		zap.String("name", r.Name),
		zap.Int("prize_tiers", len(prizes)))
	return r, nil
}

// GetRaffle returns one raffle by id.
func (s *Service) GetRaffle(ctx context.Context, id string) (raffle.Raffle, error) {
	return s.store.GetByID(ctx, id)
}

// ListRaffles pages through raffles, optionally filtered by status.
func (s *Service) ListRaffles(ctx context.Context, status raffle.Status, limit, offset int) ([]raffle.Raffle, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.List(ctx, status, limit, offset)
}

// OpenRaffle admits tickets into a scheduled raffle.
func (s *Service) OpenRaffle(ctx context.Context, id string) (raffle.Raffle, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return raffle.Raffle{}, err
	}
	opened, err := r.Open(s.now())
	if err != nil {
		return raffle.Raffle{}, err
	}
	if err := s.store.Update(ctx, opened); err != nil {
		return raffle.Raffle{}, err
	}
	return opened, nil
}

// RunDraw executes the draw: it gathers the usable tickets issued within the
// raffle period, picks winners, consumes every entered ticket and promotes the
// winning ones, then persists raffle, winners and tickets atomically. Winners
// are announced over the notifier after commit.
func (s *Service) RunDraw(ctx context.Context, id string) (raffle.Raffle, []raffle.Winner, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return raffle.Raffle{}, nil, err
	}

	eligible, err := s.tickets.ListUsableIssuedBetween(ctx, r.PeriodStart, r.PeriodEnd, s.maxDraw)
	if err != nil {
		return raffle.Raffle{}, nil, err
	}

	now := s.now()
	rng := mrand.New(mrand.NewSource(s.seed()))
	drawn, winners, err := r.Draw(eligible, rng, now, s.idGen)
	if err != nil {
		return raffle.Raffle{}, nil, err
	}

	winningTickets := make(map[string]bool, len(winners))
	for _, w := range winners {
		winningTickets[w.TicketID] = true
	}
	consumed := make([]ticket.RaffleTicket, 0, len(eligible))
	for _, tk := range eligible {
		used, err := tk.Use(drawn.ID, now)
		if err != nil {
			return raffle.Raffle{}, nil, err
		}
		if winningTickets[used.ID] {
			if used, err = used.MarkWon(now); err != nil {
				return raffle.Raffle{}, nil, err
			}
		}
		consumed = append(consumed, used)
	}

	if err := s.store.SaveDraw(ctx, drawn, winners, consumed); err != nil {
		s.logger.Error("draw not persisted", zap.String("raffle_id", id), zap.Error(err))
		return raffle.Raffle{}, nil, err
	}

	events.PublishAll(ctx, s.publisher, s.logger, drawn.PendingEvents())
	metrics.RaffleDrawsTotal.Inc()
	if s.notifier != nil {
		for _, w := range winners {
			s.notifier.NotifyWinner(w)
		}
	}

	s.logger.Info("raffle drawn",
		zap.String("raffle_id", id),
		zap.Int("tickets", drawn.TicketCount),
		zap.Int("winners", len(winners)))
	return drawn.ClearPending(), winners, nil
}

// SettleRaffle closes out a drawn raffle.
func (s *Service) SettleRaffle(ctx context.Context, id string) (raffle.Raffle, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return raffle.Raffle{}, err
	}
	settled, err := r.Settle(s.now())
	if err != nil {
		return raffle.Raffle{}, err
	}
	if err := s.store.Update(ctx, settled); err != nil {
		return raffle.Raffle{}, err
	}
	return settled, nil
}

// CancelRaffle aborts a raffle before its draw.
func (s *Service) CancelRaffle(ctx context.Context, id string) (raffle.Raffle, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return raffle.Raffle{}, err
	}
	cancelled, err := r.Cancel(s.now())
	if err != nil {
		return raffle.Raffle{}, err
	}
	if err := s.store.Update(ctx, cancelled); err != nil {
		return raffle.Raffle{}, err
	}
	return cancelled, nil
}

// ListWinners returns a raffle's winners.
func (s *Service) ListWinners(ctx context.Context, raffleID string) ([]raffle.Winner, error) {
	return s.store.ListWinners(ctx, raffleID)
}

// ClaimPrize lets the winning user claim their prize.
func (s *Service) ClaimPrize(ctx context.Context, winnerID, userID string) (raffle.Winner, error) {
	w, err := s.store.GetWinner(ctx, winnerID)
	if err != nil {
		return raffle.Winner{}, err
	}
	if w.UserID != userID {
		return raffle.Winner{}, xerrors.Wrap(xerrors.ErrForbidden, "prize belongs to another user")
	}

	now := s.now()
	claimed, err := w.Claim(now)
	if err != nil {
		return raffle.Winner{}, err
	}
	if err := s.store.UpdateWinner(ctx, claimed); err != nil {
		return raffle.Winner{}, err
	}
	events.PublishAll(ctx, s.publisher, s.logger, []event.Event{
		event.New(event.TypePrizeClaimed, "raffle", claimed.RaffleID, now, map[string]interface{}{
			"winner_id": claimed.ID,
			"user_id":   claimed.UserID,
		}),
	})

	s.logger.Info("prize claimed", zap.String("winner_id", winnerID), zap.String("user_id", userID))
	return claimed, nil
}

// ExpireClaims lapses prizes left unclaimed past the claim window.
func (s *Service) ExpireClaims(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	now := s.now()
	pending, err := s.store.ListPendingWinners(ctx, now.Add(-s.claimTTL), limit)
	if err != nil {
		return 0, err
	}

	lapsed := 0
	for _, w := range pending {
		expired, ok := w.ExpireClaim(now, s.claimTTL)
		if !ok {
			continue
		}
		if err := s.store.UpdateWinner(ctx, expired); err != nil {
			return lapsed, err
		}
		lapsed++
	}
	if lapsed > 0 {
		s.logger.Info("prize claims lapsed", zap.Int("count", lapsed))
	}
	return lapsed, nil
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
