package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/raffle"
	"fuelpoints-service/internal/domain/ticket"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type RaffleRepository struct {
	db *pgxpool.Pool
}

func NewRaffleRepository(db *pgxpool.Pool) *RaffleRepository {
	return &RaffleRepository{db: db}
}

const raffleColumns = `
	id, name, period_start, period_end, status, prizes, ticket_count, created_at, updated_at`

const winnerColumns = `
	id, raffle_id, user_id, ticket_id, ticket_number, prize_tier,
	prize_amount::text, claim_status, won_at, claimed_at`

// Create inserts a scheduled raffle. Prize tiers are stored as jsonb.
func (r *RaffleRepository) Create(ctx context.Context, rf raffle.Raffle) error {
	prizes, err := json.Marshal(rf.Prizes)
	if err != nil {
		return fmt.Errorf("failed to marshal prizes: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO raffles (id, name, period_start, period_end, status, prizes, ticket_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rf.ID, rf.Name, rf.PeriodStart, rf.PeriodEnd, rf.Status, prizes, rf.TicketCount, rf.CreatedAt, rf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create raffle: %w", err)
	}
	return nil
}

// GetByID retrieves one raffle.
func (r *RaffleRepository) GetByID(ctx context.Context, id string) (raffle.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1`
	return scanRaffle(r.db.QueryRow(ctx, query, id))
}

// Update writes a raffle's lifecycle state.
func (r *RaffleRepository) Update(ctx context.Context, rf raffle.Raffle) error {
	return updateRaffleTx(ctx, r.db, rf)
}

// List pages raffles, optionally filtered by status.
func (r *RaffleRepository) List(ctx context.Context, status raffle.Status, limit, offset int) ([]raffle.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY period_end DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list raffles: %w", err)
	}
	defer rows.Close()

	var out []raffle.Raffle
	for rows.Next() {
		rf, err := scanRaffle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}

// SaveDraw persists a draw's full outcome in one transaction: the DRAWN
// raffle, every winner row and every consumed ticket.
func (r *RaffleRepository) SaveDraw(ctx context.Context, rf raffle.Raffle, winners []raffle.Winner, consumed []ticket.RaffleTicket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateRaffleTx(ctx, tx, rf); err != nil {
		return err
	}
	for _, w := range winners {
		if _, err := tx.Exec(ctx, `
			INSERT INTO raffle_winners (id, raffle_id, user_id, ticket_id, ticket_number, prize_tier, prize_amount, claim_status, won_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, w.ID, w.RaffleID, w.UserID, w.TicketID, w.TicketNumber, w.PrizeTier,
			w.PrizeAmount.String(), w.ClaimStatus, w.WonAt); err != nil {
			return fmt.Errorf("failed to insert winner %s: %w", w.ID, err)
		}
	}
	for _, tk := range consumed {
		if err := updateTicketTx(ctx, tx, tk); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListWinners returns a raffle's winners ordered by prize tier.
func (r *RaffleRepository) ListWinners(ctx context.Context, raffleID string) ([]raffle.Winner, error) {
	query := `SELECT ` + winnerColumns + ` FROM raffle_winners WHERE raffle_id = $1 ORDER BY prize_tier, ticket_number`
	rows, err := r.db.Query(ctx, query, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}
	defer rows.Close()
	return collectWinners(rows)
}

// GetWinner retrieves one winner row.
func (r *RaffleRepository) GetWinner(ctx context.Context, winnerID string) (raffle.Winner, error) {
	query := `SELECT ` + winnerColumns + ` FROM raffle_winners WHERE id = $1`
	return scanWinner(r.db.QueryRow(ctx, query, winnerID))
}

// UpdateWinner writes a winner's claim state.
func (r *RaffleRepository) UpdateWinner(ctx context.Context, w raffle.Winner) error {
	_, err := r.db.Exec(ctx,
		`UPDATE raffle_winners SET claim_status = $1, claimed_at = $2 WHERE id = $3`,
		w.ClaimStatus, w.ClaimedAt, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update winner %s: %w", w.ID, err)
	}
	return nil
}

// ListPendingWinners returns unclaimed prizes won before the given instant.
func (r *RaffleRepository) ListPendingWinners(ctx context.Context, wonBefore time.Time, limit int) ([]raffle.Winner, error) {
	query := `SELECT ` + winnerColumns + ` FROM raffle_winners
		WHERE claim_status = 'PENDING' AND won_at < $1 ORDER BY won_at LIMIT $2`
	rows, err := r.db.Query(ctx, query, wonBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending winners: %w", err)
	}
	defer rows.Close()
	return collectWinners(rows)
}

func updateRaffleTx(ctx context.Context, db queryExecer, rf raffle.Raffle) error {
	_, err := db.Exec(ctx,
		`UPDATE raffles SET status = $1, ticket_count = $2, updated_at = $3 WHERE id = $4`,
		rf.Status, rf.TicketCount, rf.UpdatedAt, rf.ID)
	if err != nil {
		return fmt.Errorf("failed to update raffle %s: %w", rf.ID, err)
	}
	return nil
}

func scanRaffle(row rowScanner) (raffle.Raffle, error) {
	var (
		rf     raffle.Raffle
		prizes []byte
	)
	err := row.Scan(&rf.ID, &rf.Name, &rf.PeriodStart, &rf.PeriodEnd, &rf.Status,
		&prizes, &rf.TicketCount, &rf.CreatedAt, &rf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return raffle.Raffle{}, xerrors.ErrNotFound
	}
	if err != nil {
		return raffle.Raffle{}, fmt.Errorf("failed to scan raffle: %w", err)
	}
	if len(prizes) > 0 {
		if err := json.Unmarshal(prizes, &rf.Prizes); err != nil {
			return raffle.Raffle{}, fmt.Errorf("failed to unmarshal prizes: %w", err)
		}
	}
	return rf, nil
}

func collectWinners(rows pgx.Rows) ([]raffle.Winner, error) {
	var out []raffle.Winner
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWinner(row rowScanner) (raffle.Winner, error) {
	var (
		w      raffle.Winner
		amount string
	)
	err := row.Scan(&w.ID, &w.RaffleID, &w.UserID, &w.TicketID, &w.TicketNumber, &w.PrizeTier,
		&amount, &w.ClaimStatus, &w.WonAt, &w.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return raffle.Winner{}, xerrors.ErrNotFound
	}
	if err != nil {
		return raffle.Winner{}, fmt.Errorf("failed to scan winner: %w", err)
	}
	if w.PrizeAmount, err = decimal.NewFromString(amount); err != nil {
		return raffle.Winner{}, fmt.Errorf("malformed prize amount: %w", err)
	}
	return w, nil
}
