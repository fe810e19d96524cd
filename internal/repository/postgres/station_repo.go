package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/station"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type StationRepository struct {
	db *pgxpool.Pool
}

func NewStationRepository(db *pgxpool.Pool) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = `
	id, name, prefix, city, address, fuel_types, active, created_at, updated_at`

// Create inserts a new station.
func (r *StationRepository) Create(ctx context.Context, st station.Station) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stations (id, name, prefix, city, address, fuel_types, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, st.ID, st.Name, st.Prefix, st.City, st.Address, pq.StringArray(st.FuelTypes),
		st.Active, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}
	return nil
}

// GetByID retrieves one station.
func (r *StationRepository) GetByID(ctx context.Context, id string) (station.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE id = $1`
	return scanStation(r.db.QueryRow(ctx, query, id))
}

// Update writes a station's mutable fields.
func (r *StationRepository) Update(ctx context.Context, st station.Station) error {
	_, err := r.db.Exec(ctx, `
		UPDATE stations
		SET name = $1, city = $2, address = $3, fuel_types = $4, active = $5, updated_at = $6
		WHERE id = $7
	`, st.Name, st.City, st.Address, pq.StringArray(st.FuelTypes), st.Active, st.UpdatedAt, st.ID)
	if err != nil {
		return fmt.Errorf("failed to update station %s: %w", st.ID, err)
	}
	return nil
}

// List pages stations, optionally restricted to active ones.
func (r *StationRepository) List(ctx context.Context, onlyActive bool, limit, offset int) ([]station.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY name LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var out []station.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// NextReferenceSeq hands out the next receipt sequence for a station's
// business day. The upsert keeps the sequence gapless under concurrency.
func (r *StationRepository) NextReferenceSeq(ctx context.Context, stationID string, day time.Time) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO station_ref_counters (station_id, day, next_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (station_id, day)
		DO UPDATE SET next_seq = station_ref_counters.next_seq + 1
		RETURNING next_seq
	`, stationID, day.UTC().Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate reference sequence: %w", err)
	}
	return seq, nil
}

func scanStation(row rowScanner) (station.Station, error) {
	var (
		st        station.Station
		fuelTypes pq.StringArray
	)
	err := row.Scan(&st.ID, &st.Name, &st.Prefix, &st.City, &st.Address,
		&fuelTypes, &st.Active, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return station.Station{}, xerrors.ErrNotFound
	}
	if err != nil {
		return station.Station{}, fmt.Errorf("failed to scan station: %w", err)
	}
	st.FuelTypes = fuelTypes
	return st, nil
}
