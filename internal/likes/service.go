package likes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercekit/fulfillment/internal/domain"
)

// CounterStore is the optimistic-version counter the service retries against.
type CounterStore interface {
	ReadWithVersion(ctx context.Context, targetID string, targetType domain.LikeTargetType) (domain.LikeSummary, error)
	WriteIfVersionMatches(ctx context.Context, summary domain.LikeSummary, newCount int64) (bool, error)
}

// Publisher feeds the analytics sink. Publishing is best-effort; a sink
// failure never fails the like operation.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

const defaultMaxAttempts = 10

// Service applies like-count deltas with bounded optimistic retry. No row
// lock is ever held; a conflicting write re-reads and tries again up to
// maxAttempts times.
type Service struct {
	store       CounterStore
	publisher   Publisher
	logger      *slog.Logger
	maxAttempts int
}

type Option func(*Service)

func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func NewService(store CounterStore, publisher Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Increase(ctx context.Context, targetID string, targetType domain.LikeTargetType) (int64, error) {
	return s.apply(ctx, targetID, targetType, 1)
}

func (s *Service) Decrease(ctx context.Context, targetID string, targetType domain.LikeTargetType) (int64, error) {
	return s.apply(ctx, targetID, targetType, -1)
}

func (s *Service) Count(ctx context.Context, targetID string, targetType domain.LikeTargetType) (int64, error) {
	summary, err := s.store.ReadWithVersion(ctx, targetID, targetType)
	if err != nil {
		return 0, err
	}
	return summary.LikeCount, nil
}

func (s *Service) apply(ctx context.Context, targetID string, targetType domain.LikeTargetType, delta int64) (int64, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		summary, err := s.store.ReadWithVersion(ctx, targetID, targetType)
		if err != nil {
			return 0, err
		}

		next, err := summary.Apply(delta)
		if err != nil {
			return 0, err
		}

		ok, err := s.store.WriteIfVersionMatches(ctx, summary, next)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		if attempt > 1 {
			s.logger.Debug("like counter write succeeded after retry",
				"target_id", targetID, "attempts", attempt)
		}
		s.publishChange(ctx, targetID, targetType, delta)
		return next, nil
	}

	return 0, fmt.Errorf("%w: target %s after %d attempts",
		domain.ErrConcurrencyExhausted, targetID, s.maxAttempts)
}

func (s *Service) publishChange(ctx context.Context, targetID string, targetType domain.LikeTargetType, delta int64) {
	if s.publisher == nil {
		return
	}
	event := domain.LikeChangedEvent{
		TargetID:   targetID,
		TargetType: targetType,
		Delta:      delta,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, targetID, event); err != nil {
		s.logger.Error("failed to publish like change", "error", err, "target_id", targetID)
	}
}
