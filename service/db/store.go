package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrDuplicateKey is returned when a trade id is inserted twice.
var ErrDuplicateKey = errors.New("duplicate key")

const pgErrUniqueViolation = "23505"

// Store persists positions and completed trades in Postgres.
// It satisfies ledger.PositionStore and ledger.TradeLog.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Connect opens and pings a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) observe(op, table string, start time.Time, err error) {
	s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// LoadPositions returns all open positions ordered by buy time.
func (s *Store) LoadPositions(ctx context.Context) (positions []ledger.Position, err error) {
	start := time.Now()
	defer func() { s.observe("load_positions", "positions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT mint, pool_id, buy_price, buy_time, token_amount, peak_price, sol_cost
		FROM positions
		ORDER BY buy_time, mint`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions = []ledger.Position{}
	for rows.Next() {
		var p ledger.Position
		if err := rows.Scan(&p.Mint, &p.PoolID, &p.BuyPrice, &p.BuyTime, &p.TokenAmount, &p.PeakPrice, &p.SolCost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	return positions, nil
}

// SavePositions replaces the stored set with positions in one transaction.
func (s *Store) SavePositions(ctx context.Context, positions []ledger.Position) (err error) {
	start := time.Now()
	defer func() { s.observe("save_positions", "positions", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO positions (mint, pool_id, buy_price, buy_time, token_amount, peak_price, sol_cost)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.Mint, p.PoolID, p.BuyPrice, p.BuyTime, p.TokenAmount, p.PeakPrice, p.SolCost)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert positions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit positions: %w", err)
	}
	return nil
}
