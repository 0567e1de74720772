package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mevshield/mevwatch/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, pool_id, kind, estimated_value, risk_score,
	confidence, detected_at, block_number, tx_hash`

func scanOpportunityRows(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o      domain.Opportunity
			txHash *string
		)
		if err := rows.Scan(
			&o.ID, &o.PoolID, &o.Kind, &o.EstimatedValue, &o.RiskScore,
			&o.Confidence, &o.DetectedAt, &o.BlockNumber, &txHash,
		); err != nil {
			return nil, err
		}
		if txHash != nil {
			o.TxHash = *txHash
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// Insert stores an opportunity. Re-inserting the same ID is a no-op, so the
// write-through from the ledger is idempotent across retries.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, pool_id, kind, estimated_value, risk_score,
			confidence, detected_at, block_number, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.PoolID, opp.Kind, opp.EstimatedValue, opp.RiskScore,
		opp.Confidence, opp.DetectedAt, opp.BlockNumber, nullable(opp.TxHash),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns opportunities newest-first with pagination.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + opportunitySelectCols + `
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent opportunities: %w", err)
	}
	return opps, nil
}

// ListBefore returns all opportunities detected strictly before the given
// time, oldest-first. The archiver uses this to page out aged rows.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + `
		FROM opportunities
		WHERE detected_at < $1
		ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return opps, nil
}

// DeleteBefore removes opportunities detected strictly before the given time
// and reports how many rows were dropped.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM opportunities WHERE detected_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// nullable maps an empty string to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
