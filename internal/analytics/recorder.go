package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Recorder lands fulfillment events from the bus topic into the warehouse
// table. Events are append-only; replays produce duplicate rows, which the
// downstream pipeline dedupes on its side.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func (r *Recorder) Handle(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		// A malformed message would poison the partition if we errored here;
		// log and move on.
		r.logger.Error("skipping malformed event", "error", err)
		return nil
	}
	if env.Name == "" {
		r.logger.Error("skipping event without a name")
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_events (name, payload)
		VALUES ($1, $2)
	`, env.Name, []byte(env.Payload))
	if err != nil {
		return fmt.Errorf("record %s event: %w", env.Name, err)
	}

	r.logger.Info("event recorded", "name", env.Name)
	return nil
}
