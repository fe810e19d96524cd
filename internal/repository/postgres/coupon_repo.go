package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/coupon"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CouponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `
	id, campaign_id, code, discount_type, discount_value::text, ticket_count,
	status, generated_at, valid_from, valid_until, bound_user_id, redemption_id,
	min_purchase_amount::text, max_purchase_amount::text,
	allowed_fuel_types, allowed_station_ids, excluded_station_ids, version`

// SaveBatch inserts a coupon batch and bumps the campaign's generation
// counter in one transaction. The campaign update is guarded by its version.
func (r *CouponRepository) SaveBatch(ctx context.Context, c campaign.Campaign, expectedVersion int64, coupons []coupon.Coupon) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateCampaignTx(ctx, tx, c, expectedVersion); err != nil {
		return err
	}
	for i := range coupons {
		if err := insertCoupon(ctx, tx, coupons[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertCoupon(ctx context.Context, db queryExecer, cp coupon.Coupon) error {
	query := `
		INSERT INTO coupons (
			id, campaign_id, code, discount_type, discount_value, ticket_count,
			status, generated_at, valid_from, valid_until, bound_user_id,
			min_purchase_amount, max_purchase_amount,
			allowed_fuel_types, allowed_station_ids, excluded_station_ids, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := db.Exec(ctx, query,
		cp.ID, cp.CampaignID, cp.Code, cp.Discount.Type, cp.Discount.Value.String(), cp.TicketCount,
		cp.Status, cp.GeneratedAt, cp.ValidFrom, cp.ValidUntil, nullString(cp.BoundUserID),
		nullDecimalParam(cp.Applicability.MinPurchaseAmount), nullDecimalParam(cp.Applicability.MaxPurchaseAmount),
		pq.StringArray(cp.Applicability.AllowedFuelTypes),
		pq.StringArray(cp.Applicability.AllowedStationIDs),
		pq.StringArray(cp.Applicability.ExcludedStationIDs),
		cp.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert coupon %s: %w", cp.Code, err)
	}
	return nil
}

// GetByCode retrieves a coupon by its printed code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return scanCoupon(r.db.QueryRow(ctx, query, code))
}

// Update persists a coupon's mutable state under optimistic locking.
func (r *CouponRepository) Update(ctx context.Context, cp coupon.Coupon, expectedVersion int64) error {
	return updateCouponTx(ctx, r.db, cp, expectedVersion, "")
}

// ListByCampaign pages a campaign's coupons.
func (r *CouponRepository) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]coupon.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons
		WHERE campaign_id = $1 ORDER BY generated_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()
	return collectCoupons(rows)
}

// ListExpiring returns ACTIVE coupons whose validity window closed before asOf.
func (r *CouponRepository) ListExpiring(ctx context.Context, asOf time.Time, limit int) ([]coupon.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons
		WHERE status = 'ACTIVE' AND valid_until < $1 ORDER BY valid_until LIMIT $2`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring coupons: %w", err)
	}
	defer rows.Close()
	return collectCoupons(rows)
}

// updateCouponTx writes coupon state with the version guard. When statusGuard
// is non-empty the row must still be in that status, which is how a coupon is
// consumed exactly once even under concurrent redemptions.
func updateCouponTx(ctx context.Context, db queryExecer, cp coupon.Coupon, expectedVersion int64, statusGuard coupon.Status) error {
	query := `
		UPDATE coupons
		SET status = $1, bound_user_id = $2, redemption_id = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`
	args := []any{cp.Status, nullString(cp.BoundUserID), nullString(cp.RedemptionID), cp.ID, expectedVersion}
	if statusGuard != "" {
		query += ` AND status = $6`
		args = append(args, statusGuard)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update coupon %s: %w", cp.Code, err)
	}
	if tag.RowsAffected() == 0 {
		if statusGuard != "" {
			return xerrors.Wrap(xerrors.ErrAlreadyRedeemed, fmt.Sprintf("coupon %s", cp.Code))
		}
		return xerrors.Wrap(xerrors.ErrConcurrencyConflict, fmt.Sprintf("coupon %s", cp.Code))
	}
	return nil
}

func collectCoupons(rows pgx.Rows) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	for rows.Next() {
		cp, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func scanCoupon(row rowScanner) (coupon.Coupon, error) {
	var (
		cp               coupon.Coupon
		discountValue    string
		boundUserID      *string
		redemptionID     *string
		minPurchase      *string
		maxPurchase      *string
		fuelTypes        pq.StringArray
		allowedStations  pq.StringArray
		excludedStations pq.StringArray
	)

	err := row.Scan(
		&cp.ID, &cp.CampaignID, &cp.Code, &cp.Discount.Type, &discountValue, &cp.TicketCount,
		&cp.Status, &cp.GeneratedAt, &cp.ValidFrom, &cp.ValidUntil, &boundUserID, &redemptionID,
		&minPurchase, &maxPurchase,
		&fuelTypes, &allowedStations, &excludedStations, &cp.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.Coupon{}, xerrors.ErrNotFound
	}
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("failed to scan coupon: %w", err)
	}

	if cp.Discount.Value, err = decimal.NewFromString(discountValue); err != nil {
		return coupon.Coupon{}, fmt.Errorf("malformed discount value: %w", err)
	}
	if boundUserID != nil {
		cp.BoundUserID = *boundUserID
	}
	if redemptionID != nil {
		cp.RedemptionID = *redemptionID
	}
	if cp.Applicability.MinPurchaseAmount, err = scanNullDecimal(minPurchase); err != nil {
		return coupon.Coupon{}, err
	}
	if cp.Applicability.MaxPurchaseAmount, err = scanNullDecimal(maxPurchase); err != nil {
		return coupon.Coupon{}, err
	}
	cp.Applicability.AllowedFuelTypes = fuelTypes
	cp.Applicability.AllowedStationIDs = allowedStations
	cp.Applicability.ExcludedStationIDs = excludedStations
	return cp, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
