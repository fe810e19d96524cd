package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/ticket"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `
	id, owner_user_id, redemption_id, ticket_number, source, status,
	raffle_id, transfer_count, expires_at, issued_at, updated_at`

// GetByID retrieves one ticket.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (ticket.RaffleTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

// Update writes a ticket's mutable state.
func (r *TicketRepository) Update(ctx context.Context, tk ticket.RaffleTicket) error {
	return updateTicketTx(ctx, r.db, tk)
}

// ListByOwner pages a user's tickets, newest first.
func (r *TicketRepository) ListByOwner(ctx context.Context, ownerID string, onlyUsable bool, limit, offset int) ([]ticket.RaffleTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_user_id = $1`
	if onlyUsable {
		query += ` AND status IN ('ACTIVE', 'TRANSFERRED')`
	}
	query += ` ORDER BY issued_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

// ListExpiring returns usable tickets past their expiry instant.
func (r *TicketRepository) ListExpiring(ctx context.Context, asOf time.Time, limit int) ([]ticket.RaffleTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE status IN ('ACTIVE', 'TRANSFERRED') AND expires_at < $1
		ORDER BY expires_at LIMIT $2`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring tickets: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

// CountUsableByOwner counts a user's live raffle entries.
func (r *TicketRepository) CountUsableByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE owner_user_id = $1 AND status IN ('ACTIVE', 'TRANSFERRED')`,
		ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

// ListUsableIssuedBetween returns the draw-eligible tickets issued within a
// raffle period.
func (r *TicketRepository) ListUsableIssuedBetween(ctx context.Context, from, to time.Time, limit int) ([]ticket.RaffleTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE status IN ('ACTIVE', 'TRANSFERRED') AND issued_at >= $1 AND issued_at <= $2
		ORDER BY ticket_number LIMIT $3`
	rows, err := r.db.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible tickets: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

func updateTicketTx(ctx context.Context, db queryExecer, tk ticket.RaffleTicket) error {
	_, err := db.Exec(ctx, `
		UPDATE tickets
		SET owner_user_id = $1, status = $2, raffle_id = $3, transfer_count = $4, updated_at = $5
		WHERE id = $6
	`, tk.OwnerUserID, tk.Status, nullString(tk.RaffleID), tk.TransferCount, tk.UpdatedAt, tk.ID)
	if err != nil {
		return fmt.Errorf("failed to update ticket %s: %w", tk.ID, err)
	}
	return nil
}

func collectTickets(rows pgx.Rows) ([]ticket.RaffleTicket, error) {
	var out []ticket.RaffleTicket
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tk)
	}
	return out, rows.Err()
}

func scanTicket(row rowScanner) (ticket.RaffleTicket, error) {
	var (
		tk       ticket.RaffleTicket
		raffleID *string
	)
	err := row.Scan(
		&tk.ID, &tk.OwnerUserID, &tk.RedemptionID, &tk.TicketNumber, &tk.Source, &tk.Status,
		&raffleID, &tk.TransferCount, &tk.ExpiresAt, &tk.IssuedAt, &tk.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ticket.RaffleTicket{}, xerrors.ErrNotFound
	}
	if err != nil {
		return ticket.RaffleTicket{}, fmt.Errorf("failed to scan ticket: %w", err)
	}
	if raffleID != nil {
		tk.RaffleID = *raffleID
	}
	return tk, nil
}
