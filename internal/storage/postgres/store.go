package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainPulse/internal/model"
	"chainPulse/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS latest_blocks (
	chain_id BIGINT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS price_snapshots (
	chain_id BIGINT NOT NULL,
	asset TEXT NOT NULL,
	price NUMERIC NOT NULL,
	one_day_ago_price NUMERIC NOT NULL,
	percent_change NUMERIC NOT NULL,
	round_updated_at BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, asset)
);
`

// Store provides Postgres persistence for published chain state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Dispatch persists the published action. Swap helper actions are not stored.
func (s *Store) Dispatch(ctx context.Context, action store.Action) error {
	switch a := action.(type) {
	case store.SetLatestBlock:
		return s.UpsertLatestBlock(ctx, a.ChainID, a.BlockNumber)
	case store.SetNativePrice:
		return s.UpsertPriceSnapshots(ctx, []model.PriceSnapshot{a.Snapshot})
	case store.SetSecondaryPrice:
		return s.UpsertPriceSnapshots(ctx, []model.PriceSnapshot{a.Snapshot})
	case store.SetSwapHelper:
		return nil
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

// UpsertLatestBlock records the latest block of a chain.
func (s *Store) UpsertLatestBlock(ctx context.Context, chainID, blockNumber uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO latest_blocks (chain_id, block_number, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain_id) DO UPDATE
		SET block_number = EXCLUDED.block_number, updated_at = now()
	`, int64(chainID), int64(blockNumber))
	return err
}

// UpsertPriceSnapshots replaces the stored snapshot of each (chain, asset).
func (s *Store) UpsertPriceSnapshots(ctx context.Context, snaps []model.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(`
			INSERT INTO price_snapshots (
				chain_id, asset, price, one_day_ago_price, percent_change, round_updated_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (chain_id, asset)
			DO UPDATE SET
				price = EXCLUDED.price,
				one_day_ago_price = EXCLUDED.one_day_ago_price,
				percent_change = EXCLUDED.percent_change,
				round_updated_at = EXCLUDED.round_updated_at,
				updated_at = now()
		`,
			int64(snap.ChainID),
			string(snap.Asset),
			snap.Price.String(),
			snap.OneDayAgoPrice.String(),
			snap.PercentChange.String(),
			int64(snap.UpdatedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestBlock returns the stored block number of a chain.
func (s *Store) LatestBlock(ctx context.Context, chainID uint64) (uint64, bool, error) {
	var number int64
	row := s.pool.QueryRow(ctx, `SELECT block_number FROM latest_blocks WHERE chain_id=$1`, int64(chainID))
	if err := row.Scan(&number); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(number), true, nil
}
