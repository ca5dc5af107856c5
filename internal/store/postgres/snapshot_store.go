package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL, keeping
// one row per (broker, account) with the detected box groups as JSONB.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Upsert stores the latest snapshot for an account, replacing any
// previous refresh.
func (s *SnapshotStore) Upsert(ctx context.Context, snap domain.MarginSnapshot) error {
	groups, err := json.Marshal(snap.Groups)
	if err != nil {
		return fmt.Errorf("postgres: marshal groups for %s: %w", snap.AccountID, err)
	}

	const query = `
		INSERT INTO margin_snapshots (
			broker, account_id, account_name, is_ira, options_level,
			margin_debit_balance, withdraw_total, withdraw_margin,
			box_spread_debit_balance, groups, refreshed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (broker, account_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			is_ira = EXCLUDED.is_ira,
			options_level = EXCLUDED.options_level,
			margin_debit_balance = EXCLUDED.margin_debit_balance,
			withdraw_total = EXCLUDED.withdraw_total,
			withdraw_margin = EXCLUDED.withdraw_margin,
			box_spread_debit_balance = EXCLUDED.box_spread_debit_balance,
			groups = EXCLUDED.groups,
			refreshed_at = EXCLUDED.refreshed_at`

	_, err = s.pool.Exec(ctx, query,
		string(snap.Broker), snap.AccountID, snap.AccountName, snap.IsIra, snap.OptionsLevel,
		snap.MarginDebitBalance, snap.WithdrawTotal, snap.WithdrawMargin,
		snap.BoxSpreadDebitBalance, groups, snap.RefreshedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert snapshot %s/%s: %w", snap.Broker, snap.AccountID, err)
	}
	return nil
}

const snapshotSelectCols = `broker, account_id, account_name, is_ira, options_level,
	margin_debit_balance, withdraw_total, withdraw_margin,
	box_spread_debit_balance, groups, refreshed_at`

func scanSnapshot(scanner interface{ Scan(dest ...any) error }) (domain.MarginSnapshot, error) {
	var snap domain.MarginSnapshot
	var broker string
	var groups []byte

	err := scanner.Scan(
		&broker, &snap.AccountID, &snap.AccountName, &snap.IsIra, &snap.OptionsLevel,
		&snap.MarginDebitBalance, &snap.WithdrawTotal, &snap.WithdrawMargin,
		&snap.BoxSpreadDebitBalance, &groups, &snap.RefreshedAt,
	)
	if err != nil {
		return domain.MarginSnapshot{}, err
	}

	snap.Broker = domain.Broker(broker)
	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &snap.Groups); err != nil {
			return domain.MarginSnapshot{}, fmt.Errorf("unmarshal groups: %w", err)
		}
	}
	return snap, nil
}

// ListLatest returns the latest snapshot of every account, borrowing
// capable accounts first.
func (s *SnapshotStore) ListLatest(ctx context.Context) ([]domain.MarginSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotSelectCols+`
		 FROM margin_snapshots
		 ORDER BY is_ira ASC, broker ASC, account_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.MarginSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	return snaps, nil
}

// GetByAccount returns one account's latest snapshot, or domain.ErrNotFound.
func (s *SnapshotStore) GetByAccount(ctx context.Context, broker domain.Broker, accountID string) (domain.MarginSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotSelectCols+`
		 FROM margin_snapshots
		 WHERE broker = $1 AND account_id = $2`, string(broker), accountID)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarginSnapshot{}, domain.ErrNotFound
		}
		return domain.MarginSnapshot{}, fmt.Errorf("postgres: get snapshot %s/%s: %w", broker, accountID, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
