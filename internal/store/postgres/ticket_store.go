package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// TicketStore implements domain.TicketStore using PostgreSQL.
type TicketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore creates a TicketStore backed by the given connection pool.
func NewTicketStore(pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

// Create inserts a new order ticket.
func (s *TicketStore) Create(ctx context.Context, t domain.OrderTicket) error {
	const query = `
		INSERT INTO tickets (
			id, account_id, account_name, broker, direction,
			expiration_date, strike_price1, strike_price2, quantity,
			limit_price, upfront_cash, repayment_amount, cost_basis,
			exceeds_credit_limit, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.AccountID, t.AccountName, string(t.Broker), string(t.Direction),
		t.ExpirationDate, t.StrikePrice1, t.StrikePrice2, t.Quantity,
		t.LimitPrice, t.UpfrontCash, t.RepaymentAmount, t.CostBasis,
		t.ExceedsCreditLimit, string(t.Source), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create ticket %s: %w", t.ID, err)
	}
	return nil
}

const ticketSelectCols = `id, account_id, account_name, broker, direction,
	expiration_date, strike_price1, strike_price2, quantity,
	limit_price, upfront_cash, repayment_amount, cost_basis,
	exceeds_credit_limit, source, created_at`

func scanTicket(scanner interface{ Scan(dest ...any) error }) (domain.OrderTicket, error) {
	var t domain.OrderTicket
	var broker, direction, source string

	err := scanner.Scan(
		&t.ID, &t.AccountID, &t.AccountName, &broker, &direction,
		&t.ExpirationDate, &t.StrikePrice1, &t.StrikePrice2, &t.Quantity,
		&t.LimitPrice, &t.UpfrontCash, &t.RepaymentAmount, &t.CostBasis,
		&t.ExceedsCreditLimit, &source, &t.CreatedAt,
	)
	if err != nil {
		return domain.OrderTicket{}, err
	}

	t.Broker = domain.Broker(broker)
	t.Direction = domain.OrderDirection(direction)
	t.Source = domain.PlanSource(source)
	return t, nil
}

// Get returns a ticket by ID, or domain.ErrNotFound.
func (s *TicketStore) Get(ctx context.Context, id string) (domain.OrderTicket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ticketSelectCols+` FROM tickets WHERE id = $1`, id)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderTicket{}, domain.ErrNotFound
		}
		return domain.OrderTicket{}, fmt.Errorf("postgres: get ticket %s: %w", id, err)
	}
	return t, nil
}

// ListByAccount returns the account's most recent tickets, newest first.
func (s *TicketStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.OrderTicket, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketSelectCols+`
		 FROM tickets
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tickets for %s: %w", accountID, err)
	}
	defer rows.Close()

	var tickets []domain.OrderTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tickets for %s: %w", accountID, err)
	}
	return tickets, nil
}

// Compile-time interface check.
var _ domain.TicketStore = (*TicketStore)(nil)
