package statestore

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"
)

// defaultPollInterval is how often a Postgres watcher re-reads its key when
// no interval is configured.
const defaultPollInterval = 2 * time.Second

// PostgresStore persists agent state in the agent_state table. Watch is
// implemented by polling updated_at, which is the degraded-but-correct analog
// of storage change notification: watchers observe the last write within one
// poll interval.
type PostgresStore struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresStore returns a store backed by db. pollInterval controls Watch
// latency; zero or negative uses the default.
func NewPostgresStore(db *sql.DB, pollInterval time.Duration) *PostgresStore {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &PostgresStore{db: db, pollInterval: pollInterval}
}

// Get returns the value for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM agent_state WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Put upserts value under key, bumping updated_at so watchers observe the write.
func (s *PostgresStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_state WHERE key = $1`, key)
	return err
}

// Watch polls key at the configured interval and emits the value whenever
// updated_at advances. Poll failures are logged and retried on the next tick;
// they never close the channel.
func (s *PostgresStore) Watch(ctx context.Context, key string) (<-chan string, error) {
	var lastSeen time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM agent_state WHERE key = $1`, key).Scan(&lastSeen)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	ch := make(chan string, 8)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			var value string
			var updatedAt time.Time
			err := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM agent_state WHERE key = $1`, key).Scan(&value, &updatedAt)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
					log.Printf("statestore: watch poll for %s: %v", key, err)
				}
				continue
			}
			if updatedAt.After(lastSeen) {
				lastSeen = updatedAt
				select {
				case ch <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
