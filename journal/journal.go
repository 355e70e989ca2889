// Package journal persists the lock table event stream to PostgreSQL for
// offline diagnostics and deadlock analysis. Events are diagnostic, not
// correctness-critical: insert failures are logged and dropped, never
// propagated back into the dispatcher.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"github.com/arborxml/arbor/lock"
	"github.com/arborxml/arbor/util/logger"
)

const insertTimeout = 2 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS lock_events (
	seq         BIGSERIAL PRIMARY KEY,
	instance_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	path        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	thread      BIGINT NOT NULL,
	ts_ns       BIGINT NOT NULL,
	group_id    BIGINT NOT NULL,
	reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS lock_events_group_idx ON lock_events (instance_id, group_id);
CREATE INDEX IF NOT EXISTS lock_events_path_idx ON lock_events (path);
`

// Journal is a lock table listener that writes every event to a lock_events
// table, stamped with the lock table instance id so overlapping runs can be
// told apart.
type Journal struct {
	db         *sql.DB
	log        *logger.Logger
	instanceID string
	registered atomic.Bool
	failures   atomic.Uint64
}

// Open connects to PostgreSQL with the given DSN and ensures the journal
// schema exists. The instanceID should come from the lock table that the
// journal will be registered with.
func Open(dsn, instanceID string) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{
		db:         db,
		log:        logger.NewLogger("journal"),
		instanceID: instanceID,
	}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Registered implements lock.EventListener.
func (j *Journal) Registered() {
	j.registered.Store(true)
	j.log.Infof("journal registered for lock table %s", j.instanceID)
}

// Unregistered implements lock.EventListener.
func (j *Journal) Unregistered() {
	j.registered.Store(false)
	j.log.Infof("journal unregistered")
}

// IsRegistered reports whether the dispatcher has acknowledged registration.
func (j *Journal) IsRegistered() bool {
	return j.registered.Load()
}

// Failures returns the number of events that could not be persisted.
func (j *Journal) Failures() uint64 {
	return j.failures.Load()
}

// Accept implements lock.EventListener. It runs on the dispatcher goroutine,
// so the insert is bounded by a short timeout.
func (j *Journal) Accept(action lock.LockAction) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO lock_events (instance_id, action, path, mode, thread, ts_ns, group_id, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.instanceID,
		action.Action.String(),
		action.ID,
		action.Mode.String(),
		action.Thread,
		int64(action.TimestampNS),
		int64(action.GroupID),
		action.Reason,
	)
	if err != nil {
		j.failures.Add(1)
		j.log.Errorf("failed to journal %s %s: %v", action.Action, action.ID, err)
	}
}
