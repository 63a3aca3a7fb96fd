// Package auditlog persists the crash/restart history of every domain to
// Postgres, so an operator can answer "how many times has block0 crashed
// this week" after the in-memory metrics (internal/metrics) have been
// reset by a kernel-core restart of its own. The schema is created on
// first connect rather than requiring a separate migration step.
package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventKind distinguishes a crash record from a restart record.
type EventKind string

const (
	EventCrash   EventKind = "crash"
	EventRestart EventKind = "restart"
)

// Event is one row of domain crash/restart history.
type Event struct {
	DomainName string
	Kind       EventKind
	Detail     string
	OccurredAt time.Time
}

// Log persists domain lifecycle events to Postgres.
type Log struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the audit schema exists.
func Open(ctx context.Context, dsn string) (*Log, error) {
	if dsn == "" {
		return nil, fmt.Errorf("auditlog: DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: create pool: %w", err)
	}

	l := &Log{pool: pool}
	if err := l.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("auditlog: ping: %w", err)
	}
	if err := l.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) ensureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS domain_events (
		id BIGSERIAL PRIMARY KEY,
		domain_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	)`)
	return err
}

// Close releases the connection pool.
func (l *Log) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// RecordCrash appends a crash event.
func (l *Log) RecordCrash(ctx context.Context, domainName, detail string) error {
	return l.record(ctx, domainName, EventCrash, detail)
}

// RecordRestart appends a restart event.
func (l *Log) RecordRestart(ctx context.Context, domainName, detail string) error {
	return l.record(ctx, domainName, EventRestart, detail)
}

func (l *Log) record(ctx context.Context, domainName string, kind EventKind, detail string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO domain_events (domain_name, kind, detail, occurred_at) VALUES ($1, $2, $3, $4)`,
		domainName, kind, detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("auditlog: insert %s event for %q: %w", kind, domainName, err)
	}
	return nil
}

// History returns the most recent events for a domain, newest first.
func (l *Log) History(ctx context.Context, domainName string, limit int) ([]Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT domain_name, kind, detail, occurred_at FROM domain_events
		 WHERE domain_name = $1 ORDER BY occurred_at DESC LIMIT $2`,
		domainName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query history for %q: %w", domainName, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.DomainName, &e.Kind, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
