// Package eventstore archives executed pool and custody events in Postgres.
package eventstore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openalpha/termvault/api/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultQueueSize = 256
	maxQueryLimit    = 1000
)

// Store writes events asynchronously and serves them back by pool or ledger
type Store struct {
	pool   *pgxpool.Pool
	queue  chan []types.Event
	logger log.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ types.EventSink = (*Store)(nil)

// Open connects to dsn and applies pending migrations
func Open(ctx context.Context, dsn string, logger log.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("event store dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to event store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging event store: %w", err)
	}

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrate(ctx, pool, sub); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:   pool,
		queue:  make(chan []types.Event, defaultQueueSize),
		logger: logger.With("module", "eventstore"),
	}, nil
}

// migrate applies every .up.sql file not yet recorded in schema_migrations
func migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT        PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		if done[file] {
			continue
		}
		sql, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("executing migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			return fmt.Errorf("recording migration %s: %w", file, err)
		}
	}
	return nil
}

// Start runs the writer until ctx is done or Close is called
func (s *Store) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-s.queue:
				if !ok {
					return
				}
				if err := s.Insert(ctx, batch); err != nil {
					s.logger.Error("Failed to archive events", "events", len(batch), "error", err)
				}
			}
		}
	}()
}

// PublishEvents queues a batch for archiving without blocking
func (s *Store) PublishEvents(_ context.Context, events []types.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- events:
	default:
		s.logger.Error("Event store queue full, dropping batch", "events", len(events))
	}
}

// Insert writes events in one round trip
func (s *Store) Insert(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range events {
		args, err := insertArgs(&events[i])
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO pool_events (height, block_time, event_type, pool_id, ledger_id, attributes)
			VALUES ($1, $2, $3, $4, $5, $6)`, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func insertArgs(ev *types.Event) ([]interface{}, error) {
	attrs := ev.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes of %s: %w", ev.Type, err)
	}
	return []interface{}{ev.Height, ev.Time, ev.Type, ev.PoolID, ev.LedgerID, raw}, nil
}

// Filter selects archived events; empty fields match everything
type Filter struct {
	PoolID   string
	LedgerID string
	Type     string
	Limit    int
}

func (f Filter) query() (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("pool_id", f.PoolID)
	add("ledger_id", f.LedgerID)
	add("event_type", f.Type)

	limit := f.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	sql := `SELECT height, block_time, event_type, pool_id, ledger_id, attributes FROM pool_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))
	return sql, args
}

// Events returns matching events, newest first
func (s *Store) Events(ctx context.Context, f Filter) ([]types.Event, error) {
	sql, args := f.query()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Event, error) {
		var (
			ev  types.Event
			raw []byte
		)
		if err := row.Scan(&ev.Height, &ev.Time, &ev.Type, &ev.PoolID, &ev.LedgerID, &raw); err != nil {
			return ev, err
		}
		err := json.Unmarshal(raw, &ev.Attributes)
		return ev, err
	})
}

// Close stops the writer and releases the connection pool
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Close()
}
