package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/domain/redemption"
	"fuelpoints-service/internal/domain/ticket"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type RedemptionRepository struct {
	db *pgxpool.Pool
}

func NewRedemptionRepository(db *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

const redemptionColumns = `
	id, coupon_id, coupon_code, campaign_id, user_id, station_id, employee_id,
	purchase_amount::text, discount_amount::text, final_amount::text,
	fuel_type, fuel_quantity::text, fuel_unit_price::text, reference, status,
	base_ticket_count, multiplier, multiplier_applied_at,
	redeemed_at, created_at, updated_at`

// SaveRedemption persists the whole redemption outcome atomically: the coupon
// flips to USED guarded by its version and prior ACTIVE status, the campaign
// usage counter moves, and the redemption row plus its base tickets land
// together. Losing the coupon race rolls everything back.
func (r *RedemptionRepository) SaveRedemption(ctx context.Context, cp coupon.Coupon, expectedVersion int64, rd redemption.Redemption, tickets []ticket.RaffleTicket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateCouponTx(ctx, tx, cp, expectedVersion, coupon.StatusActive); err != nil {
		return err
	}

	// The relative bump also advances the version so any writer holding a
	// pre-redemption snapshot loses its optimistic check instead of
	// regressing the counter.
	if _, err := tx.Exec(ctx,
		`UPDATE campaigns SET used_coupon_count = used_coupon_count + 1, version = version + 1, updated_at = $1 WHERE id = $2`,
		rd.RedeemedAt, rd.CampaignID); err != nil {
		return fmt.Errorf("failed to bump campaign usage: %w", err)
	}

	if err := insertRedemption(ctx, tx, rd); err != nil {
		return err
	}
	if err := insertTickets(ctx, tx, tickets); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveMultiplier records the ad multiplier at most once and inserts the extra
// tickets in the same transaction. The NULL guard on the multiplier column is
// the hard at-most-once boundary.
func (r *RedemptionRepository) SaveMultiplier(ctx context.Context, rd redemption.Redemption, tickets []ticket.RaffleTicket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE redemptions
		SET multiplier = $1, multiplier_applied_at = $2, updated_at = $3
		WHERE id = $4 AND multiplier IS NULL AND status = 'COMPLETED'
	`, rd.Multiplier, rd.MultiplierAppliedAt, rd.UpdatedAt, rd.ID)
	if err != nil {
		return fmt.Errorf("failed to record multiplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrMultiplierAlreadyApplied, fmt.Sprintf("redemption %s", rd.ID))
	}

	if err := insertTickets(ctx, tx, tickets); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID retrieves one redemption.
func (r *RedemptionRepository) GetByID(ctx context.Context, id string) (redemption.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE id = $1`
	return scanRedemption(r.db.QueryRow(ctx, query, id))
}

// ListByUser pages a user's redemption history, newest first.
func (r *RedemptionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]redemption.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions
		WHERE user_id = $1 ORDER BY redeemed_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

// Update writes a redemption's status.
func (r *RedemptionRepository) Update(ctx context.Context, rd redemption.Redemption) error {
	_, err := r.db.Exec(ctx,
		`UPDATE redemptions SET status = $1, updated_at = $2 WHERE id = $3`,
		rd.Status, rd.UpdatedAt, rd.ID)
	if err != nil {
		return fmt.Errorf("failed to update redemption %s: %w", rd.ID, err)
	}
	return nil
}

// UserUsage returns how many completed redemptions a user has against a
// campaign and when the last one happened.
func (r *RedemptionRepository) UserUsage(ctx context.Context, campaignID, userID string) (int, *time.Time, error) {
	var count int
	var last *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), MAX(redeemed_at)
		FROM redemptions
		WHERE campaign_id = $1 AND user_id = $2 AND status = 'COMPLETED'
	`, campaignID, userID).Scan(&count, &last)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read user usage: %w", err)
	}
	return count, last, nil
}

// AllocateTicketNumbers reserves a contiguous block of per-user ticket
// numbers and returns the first. The upsert keeps allocation race free.
func (r *RedemptionRepository) AllocateTicketNumbers(ctx context.Context, ownerUserID string, count int) (int64, error) {
	var lastAllocated int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO ticket_counters (user_id, next_number)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET next_number = ticket_counters.next_number + $2
		RETURNING next_number
	`, ownerUserID, count).Scan(&lastAllocated)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ticket numbers: %w", err)
	}
	return lastAllocated - int64(count) + 1, nil
}

// CountTickets counts a redemption's persisted tickets.
func (r *RedemptionRepository) CountTickets(ctx context.Context, redemptionID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE redemption_id = $1`, redemptionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

// ListSince returns redemptions created after the given instant.
func (r *RedemptionRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]redemption.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions
		WHERE created_at >= $1 ORDER BY created_at LIMIT $2`
	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func insertRedemption(ctx context.Context, db queryExecer, rd redemption.Redemption) error {
	query := `
		INSERT INTO redemptions (
			id, coupon_id, coupon_code, campaign_id, user_id, station_id, employee_id,
			purchase_amount, discount_amount, final_amount,
			fuel_type, fuel_quantity, fuel_unit_price, reference, status,
			base_ticket_count, redeemed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := db.Exec(ctx, query,
		rd.ID, rd.CouponID, rd.CouponCode, rd.CampaignID, rd.UserID, rd.StationID, nullString(rd.EmployeeID),
		rd.PurchaseAmount.String(), rd.DiscountAmount.String(), rd.FinalAmount.String(),
		rd.FuelType, rd.FuelQuantity.String(), rd.FuelUnitPrice.String(), rd.Reference, rd.Status,
		rd.BaseTicketCount, rd.RedeemedAt, rd.CreatedAt, rd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert redemption %s: %w", rd.ID, err)
	}
	return nil
}

func insertTickets(ctx context.Context, db queryExecer, tickets []ticket.RaffleTicket) error {
	for _, tk := range tickets {
		_, err := db.Exec(ctx, `
			INSERT INTO tickets (
				id, owner_user_id, redemption_id, ticket_number, source, status,
				transfer_count, expires_at, issued_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, tk.ID, tk.OwnerUserID, tk.RedemptionID, tk.TicketNumber, tk.Source, tk.Status,
			tk.TransferCount, tk.ExpiresAt, tk.IssuedAt, tk.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", tk.ID, err)
		}
	}
	return nil
}

func collectRedemptions(rows pgx.Rows) ([]redemption.Redemption, error) {
	var out []redemption.Redemption
	for rows.Next() {
		rd, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func scanRedemption(row rowScanner) (redemption.Redemption, error) {
	var (
		rd                        redemption.Redemption
		employeeID                *string
		purchase, discount, final string
		quantity, unitPrice       string
		multiplier                *int
	)

	err := row.Scan(
		&rd.ID, &rd.CouponID, &rd.CouponCode, &rd.CampaignID, &rd.UserID, &rd.StationID, &employeeID,
		&purchase, &discount, &final,
		&rd.FuelType, &quantity, &unitPrice, &rd.Reference, &rd.Status,
		&rd.BaseTicketCount, &multiplier, &rd.MultiplierAppliedAt,
		&rd.RedeemedAt, &rd.CreatedAt, &rd.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return redemption.Redemption{}, xerrors.ErrNotFound
	}
	if err != nil {
		return redemption.Redemption{}, fmt.Errorf("failed to scan redemption: %w", err)
	}

	if employeeID != nil {
		rd.EmployeeID = *employeeID
	}
	if multiplier != nil {
		rd.Multiplier = *multiplier
	}
	if rd.PurchaseAmount, err = decimal.NewFromString(purchase); err != nil {
		return redemption.Redemption{}, fmt.Errorf("malformed purchase amount: %w", err)
	}
	if rd.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return redemption.Redemption{}, fmt.Errorf("malformed discount amount: %w", err)
	}
	if rd.FinalAmount, err = decimal.NewFromString(final); err != nil {
		return redemption.Redemption{}, fmt.Errorf("malformed final amount: %w", err)
	}
	if rd.FuelQuantity, err = decimal.NewFromString(quantity); err != nil {
		return redemption.Redemption{}, fmt.Errorf("malformed fuel quantity: %w", err)
	}
	if rd.FuelUnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return redemption.Redemption{}, fmt.Errorf("malformed fuel unit price: %w", err)
	}
	return rd, nil
}
