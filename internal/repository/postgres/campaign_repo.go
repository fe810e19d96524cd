package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fuelpoints-service/internal/domain/campaign"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CampaignRepository struct {
	db *pgxpool.Pool
}

func NewCampaignRepository(db *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `
	id, name, description, status, starts_at, ends_at,
	discount_type, discount_value::text, default_ticket_count, generation_strategy,
	target_coupon_count, generated_coupon_count, used_coupon_count,
	min_purchase_amount::text, max_purchase_amount::text,
	allowed_fuel_types, allowed_station_ids, excluded_station_ids,
	max_uses, max_uses_per_user, cooldown_minutes,
	metadata, version, created_at, updated_at`

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, c campaign.Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, name, description, status, starts_at, ends_at,
			discount_type, discount_value, default_ticket_count, generation_strategy,
			target_coupon_count, generated_coupon_count, used_coupon_count,
			min_purchase_amount, max_purchase_amount,
			allowed_fuel_types, allowed_station_ids, excluded_station_ids,
			max_uses, max_uses_per_user, cooldown_minutes,
			metadata, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`

	metadataJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		c.ID, c.Name, c.Description, c.Status, c.Validity.StartsAt, c.Validity.EndsAt,
		c.DefaultDiscount.Type, c.DefaultDiscount.Value.String(), c.DefaultTicketCount, c.Strategy,
		c.TargetCouponCount, c.GeneratedCouponCount, c.UsedCouponCount,
		nullDecimalParam(c.Applicability.MinPurchaseAmount), nullDecimalParam(c.Applicability.MaxPurchaseAmount),
		pq.StringArray(c.Applicability.AllowedFuelTypes),
		pq.StringArray(c.Applicability.AllowedStationIDs),
		pq.StringArray(c.Applicability.ExcludedStationIDs),
		c.Usage.MaxUses, c.Usage.MaxUsesPerUser, c.Usage.CooldownMinutes,
		metadataJSON, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves one campaign.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (campaign.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return r.scanCampaign(r.db.QueryRow(ctx, query, id))
}

// Update persists a campaign under optimistic locking on version.
func (r *CampaignRepository) Update(ctx context.Context, c campaign.Campaign, expectedVersion int64) error {
	return updateCampaignTx(ctx, r.db, c, expectedVersion)
}

// List pages campaigns, optionally filtered by status.
func (r *CampaignRepository) List(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		c, err := r.scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *CampaignRepository) scanCampaign(row rowScanner) (campaign.Campaign, error) {
	var (
		c                        campaign.Campaign
		discountValue            string
		minPurchase, maxPurchase *string
		fuelTypes                pq.StringArray
		allowedStations          pq.StringArray
		excludedStations         pq.StringArray
		metadataJSON             []byte
	)

	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Status, &c.Validity.StartsAt, &c.Validity.EndsAt,
		&c.DefaultDiscount.Type, &discountValue, &c.DefaultTicketCount, &c.Strategy,
		&c.TargetCouponCount, &c.GeneratedCouponCount, &c.UsedCouponCount,
		&minPurchase, &maxPurchase,
		&fuelTypes, &allowedStations, &excludedStations,
		&c.Usage.MaxUses, &c.Usage.MaxUsesPerUser, &c.Usage.CooldownMinutes,
		&metadataJSON, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return campaign.Campaign{}, xerrors.ErrNotFound
	}
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("failed to scan campaign: %w", err)
	}

	if c.DefaultDiscount.Value, err = decimal.NewFromString(discountValue); err != nil {
		return campaign.Campaign{}, fmt.Errorf("malformed discount value: %w", err)
	}
	if c.Applicability.MinPurchaseAmount, err = scanNullDecimal(minPurchase); err != nil {
		return campaign.Campaign{}, err
	}
	if c.Applicability.MaxPurchaseAmount, err = scanNullDecimal(maxPurchase); err != nil {
		return campaign.Campaign{}, err
	}
	c.Applicability.AllowedFuelTypes = fuelTypes
	c.Applicability.AllowedStationIDs = allowedStations
	c.Applicability.ExcludedStationIDs = excludedStations

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return campaign.Campaign{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return c, nil
}

// updateCampaignTx writes the mutable campaign fields with the version guard;
// it runs against either the pool or an open transaction.
func updateCampaignTx(ctx context.Context, db queryExecer, c campaign.Campaign, expectedVersion int64) error {
	query := `
		UPDATE campaigns
		SET status = $1, generated_coupon_count = $2, used_coupon_count = $3,
		    version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
	`
	tag, err := db.Exec(ctx, query,
		c.Status, c.GeneratedCouponCount, c.UsedCouponCount, c.UpdatedAt, c.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrConcurrencyConflict, fmt.Sprintf("campaign %s", c.ID))
	}
	return nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func nullDecimalParam(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func scanNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("malformed decimal column: %w", err)
	}
	return decimal.NewNullDecimal(v), nil
}
