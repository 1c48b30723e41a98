package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres migration driver, registered by side effect
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file-based migration source driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver, registered for database/sql

	"github.com/northbeacon/quotectl/infrastructure/resilience"
)

// PostgresSink mirrors the JSONL sink but durably persists the audit trail
// to a Postgres table, for deployments that want the trail to survive the
// artifacts directory being wiped. It is optional: constructed only when
// AUDIT_POSTGRES_DSN is set.
//
// Inserts go through a circuit breaker plus a short bounded retry: the audit
// trail must never become the reason an admin call itself fails, but a
// single dropped connection shouldn't lose a row either.
type PostgresSink struct {
	db *sqlx.DB
	cb *resilience.CircuitBreaker
}

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS admin_audit_log (
	id SERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	endpoint TEXT NOT NULL,
	actor TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	sig TEXT NOT NULL
)`

// NewPostgresSink opens dsn and ensures the audit table exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: connect postgres: %w", err)
	}
	if _, err := db.Exec(auditTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: ensure audit table: %w", err)
	}
	cbCfg := resilience.Config{MaxFailures: 3, Timeout: 10 * time.Second, HalfOpenMax: 1}
	return &PostgresSink{db: db, cb: resilience.New(cbCfg)}, nil
}

// Append inserts rec as a new row, retrying transient failures a few times
// behind the breaker before giving up.
func (s *PostgresSink) Append(rec Record) error {
	err := s.cb.Execute(context.Background(), func() error {
		return resilience.Retry(context.Background(), resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 25 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
		}, func() error {
			_, err := s.db.Exec(
				`INSERT INTO admin_audit_log (ts, endpoint, actor, payload_hash, sig) VALUES ($1, $2, $3, $4, $5)`,
				rec.Timestamp, rec.Endpoint, rec.Actor, rec.PayloadHash, rec.Signature,
			)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("auditlog: insert audit row: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// MigrateUp runs any versioned migrations from migrationsDir against dsn
// ahead of constructing a PostgresSink, for deployments that manage the
// audit schema outside of NewPostgresSink's inline DDL.
func MigrateUp(dsn, migrationsDir string) error {
	m, err := migrate.New("file://"+migrationsDir, dsn)
	if err != nil {
		return fmt.Errorf("auditlog: init migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("auditlog: run migrations: %w", err)
	}
	return nil
}
