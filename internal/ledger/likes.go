package ledger

import (
	"context"
	"database/sql"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

// LikeStore persists optimistically versioned counters. Writers read the row
// with its version and write back conditionally; a lost race surfaces as
// ok=false and the caller re-reads and retries.
type LikeStore struct {
	db *sql.DB
}

func NewLikeStore(db *sql.DB) *LikeStore {
	return &LikeStore{db: db}
}

// ReadWithVersion returns the summary row, creating it lazily on first use.
func (s *LikeStore) ReadWithVersion(ctx context.Context, targetID string, targetType domain.LikeTargetType) (domain.LikeSummary, error) {
	q := tx.Executor(ctx, s.db)

	summary := domain.LikeSummary{TargetID: targetID, TargetType: targetType}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO like_summaries (target_id, target_type, like_count, version)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (target_id, target_type) DO NOTHING
	`, targetID, targetType); err != nil {
		return summary, err
	}

	err := q.QueryRowContext(ctx, `
		SELECT like_count, version
		FROM like_summaries
		WHERE target_id = $1 AND target_type = $2
	`, targetID, targetType).Scan(&summary.LikeCount, &summary.Version)
	return summary, err
}

// WriteIfVersionMatches performs the compare-and-swap: the write lands only
// if no concurrent writer bumped the version since the read.
func (s *LikeStore) WriteIfVersionMatches(ctx context.Context, summary domain.LikeSummary, newCount int64) (bool, error) {
	q := tx.Executor(ctx, s.db)

	result, err := q.ExecContext(ctx, `
		UPDATE like_summaries
		SET like_count = $3, version = version + 1
		WHERE target_id = $1 AND target_type = $2 AND version = $4
	`, summary.TargetID, summary.TargetType, newCount, summary.Version)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
