package ticket

import (
	"context"
	"time"

	"fuelpoints-service/internal/domain/ticket"
	"fuelpoints-service/internal/events"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Store is the persistence port for raffle tickets.
type Store interface {
	GetByID(ctx context.Context, id string) (ticket.RaffleTicket, error)
	Update(ctx context.Context, tk ticket.RaffleTicket) error
	ListByOwner(ctx context.Context, ownerID string, onlyUsable bool, limit, offset int) ([]ticket.RaffleTicket, error)
	ListExpiring(ctx context.Context, asOf time.Time, limit int) ([]ticket.RaffleTicket, error)
	CountUsableByOwner(ctx context.Context, ownerID string) (int, error)
}

type Service struct {
	store        Store
	publisher    events.Publisher
	logger       *zap.Logger
	maxTransfers int
	now          func() time.Time
}

func NewService(store Store, publisher events.Publisher, maxTransfers int, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		maxTransfers: maxTransfers,
		now:          time.Now,
	}
}

// GetTicket returns one ticket by id.
func (s *Service) GetTicket(ctx context.Context, id string) (ticket.RaffleTicket, error) {
	return s.store.GetByID(ctx, id)
}

// ListByOwner pages through a user's tickets.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, onlyUsable bool, limit, offset int) ([]ticket.RaffleTicket, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByOwner(ctx, ownerID, onlyUsable, limit, offset)
}

// CountUsable returns how many live raffle entries a user holds.
func (s *Service) CountUsable(ctx context.Context, ownerID string) (int, error) {
	return s.store.CountUsableByOwner(ctx, ownerID)
}

// Transfer hands a ticket from its current owner to another user. Only the
// current owner may transfer; the per-ticket transfer cap comes from policy.
func (s *Service) Transfer(ctx context.Context, ticketID, fromUserID, toUserID string) (ticket.RaffleTicket, error) {
	tk, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return ticket.RaffleTicket{}, err
	}
	if tk.OwnerUserID != fromUserID {
		return ticket.RaffleTicket{}, xerrors.Wrap(xerrors.ErrForbidden, "only the ticket owner may transfer it")
	}

	moved, err := tk.Transfer(toUserID, s.maxTransfers, s.now())
	if err != nil {
		return ticket.RaffleTicket{}, err
	}
	if err := s.store.Update(ctx, moved); err != nil {
		return ticket.RaffleTicket{}, err
	}
	events.PublishAll(ctx, s.publisher, s.logger, moved.PendingEvents())

	s.logger.Info("ticket transferred",
		zap.String("ticket_id", ticketID),
		zap.String("from", fromUserID),
		zap.String("to", toUserID),
		zap.Int("transfer_count", moved.TransferCount))
	return moved.ClearPending(), nil
}

// ExpireDue sweeps usable tickets past their expiry. Returns how many lapsed.
func (s *Service) ExpireDue(ctx context.Context, asOf time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	due, err := s.store.ListExpiring(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, tk := range due {
		changed, ok := tk.Expire(asOf)
		if !ok {
			continue
		}
		if err := s.store.Update(ctx, changed); err != nil {
			return expired, err
		}
		events.PublishAll(ctx, s.publisher, s.logger, changed.PendingEvents())
		expired++
	}
	if expired > 0 {
		s.logger.Info("tickets expired", zap.Int("count", expired))
	}
	return expired, nil
}
