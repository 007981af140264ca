package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

// DefaultPollInterval is how often subscribers read the change log.
const DefaultPollInterval = 250 * time.Millisecond

// Store keeps credentials in a sqlite file shared by every process of a
// profile. Writes append to credential_events; subscribers poll that log.
type Store struct {
	db           *sql.DB
	dsn          string
	pollInterval time.Duration
	now          func() time.Time

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often subscribers look for new events.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithNow overrides the timestamp source for rows and events.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DSN builds a modernc connection string for path with WAL, a busy timeout
// and immediate write transactions so several processes can share the file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
}

// NewStore opens dsn. Call ApplyMigrations before first use.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		dsn:          dsn,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		subs:         make(map[int]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close stops every subscription and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = map[int]*subscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", mapNotFound(err)
	}
	return value, nil
}

// Set writes value unless it is already stored. Concurrent writers from other
// processes overwrite each other; the last commit wins.
func (s *Store) Set(ctx context.Context, key, value string, origin idx.ID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		at := s.now().UnixMilli()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (key, value, origin, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				origin = excluded.origin,
				updated_at = excluded.updated_at
			WHERE credentials.value IS NOT excluded.value`,
			key, value, origin.String(), at,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return appendEvent(ctx, tx, key, value, false, origin, at)
	})
}

func (s *Store) Delete(ctx context.Context, key string, origin idx.ID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return appendEvent(ctx, tx, key, "", true, origin, s.now().UnixMilli())
	})
}

// PruneEvents removes change log entries older than before. Subscribers that
// have not read them yet skip ahead.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credential_events WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func appendEvent(ctx context.Context, tx *sql.Tx, key, value string, deleted bool, origin idx.ID, at int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credential_events (key, value, deleted, origin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, value, deleted, origin.String(), at,
	)
	return err
}

// withTx executes fn within a transaction, committing only when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return credstore.ErrNotFound
	}
	return err
}

var _ credstore.Store = (*Store)(nil)
var _ credstore.Pruner = (*Store)(nil)
