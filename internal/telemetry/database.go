package telemetry

import (
	"database/sql"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented database handle: every query gets a span, and
// connection-pool stats are exported as metrics. All stores in this module go
// through it so lock waits on the ledger rows show up in traces.
func OpenDB(driverName, dsn string) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
