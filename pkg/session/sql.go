package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SQLTable holds SQLStore sessions
const SQLTable = "keystone_auth_sessions"

// SQLStore keeps sessions in a SQL database so they survive restarts and
// are shared between replicas. Queries use $n placeholders and upserts
// understood by both PostgreSQL (lib/pq) and SQLite (go-sqlite3).
//
// Values round-trip through JSON: strings stay strings, structs come back
// as map[string]interface{}.
type SQLStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore creates a store whose sessions expire ttl after their last
// change. Call Migrate before first use.
func NewSQLStore(db *sql.DB, ttl time.Duration) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SQLStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Migrate creates the sessions table and its expiry index
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + SQLTable + ` (
			id VARCHAR(64) PRIMARY KEY,
			data TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + SQLTable + `_expires_at ON ` + SQLTable + `(expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate session table: %w", err)
		}
	}
	return nil
}

type sqlSession struct {
	id     string
	mu     sync.RWMutex
	values map[string]interface{}
	stored bool
	dirty  bool
}

func (s *sqlSession) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *sqlSession) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *sqlSession) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

func (s *sqlSession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

func (s *sqlSession) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]interface{})
	s.dirty = true
}

// Get implements Store
func (s *SQLStore) Get(ctx context.Context, id string) (Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM `+SQLTable+` WHERE id = $1 AND expires_at > $2`,
		id, s.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	values := make(map[string]interface{})
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sqlSession{id: id, values: values, stored: true}, nil
}

// Create implements Store. The row is written by the first Save that
// follows a change, so anonymous visitors cost nothing.
func (s *SQLStore) Create(context.Context) (Session, error) {
	return &sqlSession{id: uuid.NewString(), values: make(map[string]interface{})}, nil
}

// Save implements Store. Unchanged sessions are not rewritten.
func (s *SQLStore) Save(ctx context.Context, sess Session) error {
	ss, ok := sess.(*sqlSession)
	if !ok {
		return fmt.Errorf("session %s was not created by this store", sess.ID())
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if !ss.dirty {
		return nil
	}
	if !ss.stored && len(ss.values) == 0 {
		ss.dirty = false
		return nil
	}

	data, err := json.Marshal(ss.values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+SQLTable+` (id, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		ss.id, string(data), s.now().Add(s.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	ss.stored = true
	ss.dirty = false
	return nil
}

// Delete implements Store
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+SQLTable+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Rotate implements Store. The old row is deleted now; the next Save
// writes the session under its new id.
func (s *SQLStore) Rotate(ctx context.Context, sess Session) error {
	ss, ok := sess.(*sqlSession)
	if !ok {
		return fmt.Errorf("session %s was not created by this store", sess.ID())
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.stored {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+SQLTable+` WHERE id = $1`, ss.id); err != nil {
			return fmt.Errorf("failed to rotate session: %w", err)
		}
	}
	ss.id = uuid.NewString()
	ss.stored = false
	ss.dirty = true
	return nil
}

// DeleteExpired removes expired rows and returns how many were dropped
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+SQLTable+` WHERE expires_at <= $1`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}
	return n, nil
}
