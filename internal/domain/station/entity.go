package station

import (
	"fmt"
	"time"

	xerrors "fuelpoints-service/internal/pkg/errors"
	"fuelpoints-service/internal/pkg/refnum"
)

// Fuel types dispensed across the network.
const (
	FuelPetrol95 = "PETROL_95"
	FuelPetrol98 = "PETROL_98"
	FuelDiesel   = "DIESEL"
	FuelLPG      = "LPG"
)

// KnownFuelType reports whether the value is a dispensable fuel type.
func KnownFuelType(ft string) bool {
	switch ft {
	case FuelPetrol95, FuelPetrol98, FuelDiesel, FuelLPG:
		return true
	}
	return false
}

// Station is a fuel station participating in the loyalty network. Prefix is
// the 3-letter code embedded in redemption reference numbers.
type Station struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Prefix    string    `json:"prefix" db:"prefix"`
	City      string    `json:"city" db:"city"`
	Address   string    `json:"address" db:"address"`
	FuelTypes []string  `json:"fuel_types" db:"fuel_types"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateInput registers a station.
type CreateInput struct {
	Name      string
	Prefix    string
	City      string
	Address   string
	FuelTypes []string
}

// Create validates and builds an active station.
func Create(input CreateInput, now func() time.Time, idGen func() string) (Station, error) {
	if now == nil {
		now = time.Now
	}
	if input.Name == "" {
		return Station{}, xerrors.Wrap(xerrors.ErrInvalidInput, "station name is required")
	}
	if !refnum.ValidPrefix(input.Prefix) {
		return Station{}, xerrors.Wrap(xerrors.ErrInvalidInput,
			fmt.Sprintf("station prefix must be 3 uppercase letters, got %q", input.Prefix))
	}
	for _, ft := range input.FuelTypes {
		if !KnownFuelType(ft) {
			return Station{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown fuel type %q", ft))
		}
	}

	ts := now().UTC()
	return Station{
		ID:        idGen(),
		Name:      input.Name,
		Prefix:    input.Prefix,
		City:      input.City,
		Address:   input.Address,
		FuelTypes: input.FuelTypes,
		Active:    true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// Dispenses reports whether the station sells the given fuel type. An empty
// list means all fuel types.
func (s Station) Dispenses(fuelType string) bool {
	if len(s.FuelTypes) == 0 {
		return true
	}
	for _, ft := range s.FuelTypes {
		if ft == fuelType {
			return true
		}
	}
	return false
}
