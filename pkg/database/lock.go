package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/martforge/martforge/pkg/apperrors"
)

// RunLock is a session-scoped advisory lock guaranteeing single-writer
// discipline across pipeline runs. The lock is tied to one pinned connection;
// holding it prevents a second concurrent run from clearing or repopulating
// the star schema while this run is in flight.
type RunLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireRunLock attempts to take the pipeline's advisory lock without
// blocking. Returns apperrors.ErrRunInProgress when another run holds it.
func AcquireRunLock(ctx context.Context, db *DB, key int64) (*RunLock, error) {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, apperrors.ErrRunInProgress
	}

	return &RunLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *RunLock) Release(ctx context.Context) error {
	defer l.conn.Release()

	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
