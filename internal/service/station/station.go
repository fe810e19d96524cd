package station

import (
	"context"
	"time"

	"fuelpoints-service/internal/domain/station"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store is the persistence port for stations.
type Store interface {
	Create(ctx context.Context, st station.Station) error
	GetByID(ctx context.Context, id string) (station.Station, error)
	Update(ctx context.Context, st station.Station) error
	List(ctx context.Context, onlyActive bool, limit, offset int) ([]station.Station, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	idGen  func() string
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		idGen:  func() string { return ulid.Make().String() },
	}
}

// CreateStation registers a station on the network.
func (s *Service) CreateStation(ctx context.Context, input station.CreateInput) (station.Station, error) {
	st, err := station.Create(input, s.now, s.idGen)
	if err != nil {
		return station.Station{}, err
	}
	if err := s.store.Create(ctx, st); err != nil {
		return station.Station{}, xerrors.Wrap(err, "failed to persist station")
	}
	s.logger.Info("station registered",
		zap.String("station_id", st.ID),
		zap.String("prefix", st.Prefix))
	return st, nil
}

// GetStation retrieves one station.
func (s *Service) GetStation(ctx context.Context, id string) (station.Station, error) {
	return s.store.GetByID(ctx, id)
}

// ListStations pages the network.
func (s *Service) ListStations(ctx context.Context, onlyActive bool, limit, offset int) ([]station.Station, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, onlyActive, limit, offset)
}

// SetActive toggles a station in or out of service. Redemptions at an
// inactive station are refused.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (station.Station, error) {
	st, err := s.store.GetByID(ctx, id)
	if err != nil {
		return station.Station{}, err
	}
	if st.Active == active {
		return st, nil
	}
	st.Active = active
	st.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, st); err != nil {
		return station.Station{}, xerrors.Wrap(err, "failed to update station")
	}
	s.logger.Info("station availability changed",
		zap.String("station_id", st.ID),
		zap.Bool("active", active))
	return st, nil
}
