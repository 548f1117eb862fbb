package tx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/commercekit/fulfillment/internal/domain"
)

type scopeKey struct{}

// scope is the per-transaction state: the open sql.Tx (nil when the manager
// runs without a database) and the queue of events published so far.
type scope struct {
	tx     *sql.Tx
	events []domain.Event
}

// Querier is the subset of *sql.DB and *sql.Tx the stores need. Stores call
// Executor so writes join the ambient transaction when one is open.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor returns the transaction bound to ctx, or db when none is open.
func Executor(ctx context.Context, db *sql.DB) Querier {
	if sc, ok := ctx.Value(scopeKey{}).(*scope); ok && sc.tx != nil {
		return sc.tx
	}
	return db
}

// Publish enqueues event on the transaction bound to ctx. The event is
// dispatched exactly once per phase: pre-commit handlers run synchronously
// before the commit, post-commit handlers run asynchronously after it.
func Publish(ctx context.Context, event domain.Event) error {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return fmt.Errorf("tx: publish outside of a transaction")
	}
	sc.events = append(sc.events, event)
	return nil
}

// Manager runs functions inside a commit-or-rollback boundary and dispatches
// phased events relative to that boundary.
type Manager struct {
	db     *sql.DB
	bus    *Bus
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager builds a database-backed manager. bus must carry all handler
// subscriptions before the first transaction runs.
func NewManager(db *sql.DB, bus *Bus, logger *slog.Logger) *Manager {
	return &Manager{db: db, bus: bus, logger: logger}
}

// NewMemManager builds a manager without a database. The phasing contract is
// identical; "commit" is the successful return of fn plus its pre-commit
// handlers. Used by unit tests and by callers with no transactional store.
func NewMemManager(bus *Bus, logger *slog.Logger) *Manager {
	return &Manager{bus: bus, logger: logger}
}

// WithTransaction begins a transaction, binds it to the context, runs fn, and
// then drains the pre-commit queue synchronously inside the same transaction.
// Any error or panic from fn or a pre-commit handler rolls everything back,
// including the triggering writes. Only after a successful commit are
// post-commit handlers fired, each in its own goroutine, isolated from each
// other and from the caller.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	sc := &scope{}
	if m.db != nil {
		sc.tx, err = m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
	}
	txCtx := context.WithValue(ctx, scopeKey{}, sc)

	defer func() {
		if p := recover(); p != nil {
			m.rollback(sc)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		m.rollback(sc)
		return err
	}

	// Pre-commit handlers may publish further events; the queue is drained
	// FIFO until empty so every event gets exactly one pre-commit dispatch.
	for i := 0; i < len(sc.events); i++ {
		event := sc.events[i]
		for _, h := range m.bus.preCommitHandlers(event.EventName()) {
			if err := h(txCtx, event); err != nil {
				m.rollback(sc)
				return fmt.Errorf("pre-commit handler for %s: %w", event.EventName(), err)
			}
		}
	}

	if sc.tx != nil {
		if err := sc.tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	m.firePostCommit(ctx, sc.events)
	return nil
}

func (m *Manager) rollback(sc *scope) {
	if sc.tx == nil {
		return
	}
	if err := sc.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		m.logger.Error("transaction rollback failed", "error", err)
	}
}

// firePostCommit dispatches every queued event to its post-commit handlers.
// Handlers run detached from the caller's cancellation and any panic or error
// is contained to the one handler.
func (m *Manager) firePostCommit(ctx context.Context, events []domain.Event) {
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		for _, h := range m.bus.postCommitHandlers(event.EventName()) {
			m.wg.Add(1)
			go func(event domain.Event, h Handler) {
				defer m.wg.Done()
				defer func() {
					if p := recover(); p != nil {
						m.logger.Error("post-commit handler panicked", "event", event.EventName(), "panic", p)
					}
				}()
				if err := h(detached, event); err != nil {
					m.logger.Error("post-commit handler failed", "event", event.EventName(), "error", err)
				}
			}(event, h)
		}
	}
}

// Wait blocks until all in-flight post-commit handlers finish. Called on
// shutdown and by tests that assert on post-commit effects.
func (m *Manager) Wait() {
	m.wg.Wait()
}
