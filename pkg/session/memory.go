package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultMaxSessions bounds a MemoryStore
	DefaultMaxSessions = 10000
	// DefaultSessionTTL expires idle sessions
	DefaultSessionTTL = 12 * time.Hour
)

type memorySession struct {
	id     string
	mu     sync.RWMutex
	values map[string]interface{}
}

func (s *memorySession) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *memorySession) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *memorySession) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *memorySession) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]interface{})
}

// MemoryStore keeps sessions in process memory, bounded in count and idle
// lifetime. Sessions do not survive a restart.
type MemoryStore struct {
	sessions *lru.LRU[string, *memorySession]
}

// NewMemoryStore creates a store holding at most size sessions, each
// dropped ttl after its last use.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		sessions: lru.NewLRU[string, *memorySession](size, nil, ttl),
	}
}

// Load returns the session with id
func (m *MemoryStore) Load(id string) (Session, bool) {
	sess, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	// Re-adding refreshes the idle timeout.
	m.sessions.Add(id, sess)
	return sess, true
}

// New creates and stores an empty session
func (m *MemoryStore) New() Session {
	sess := &memorySession{
		id:     uuid.NewString(),
		values: make(map[string]interface{}),
	}
	m.sessions.Add(sess.id, sess)
	return sess
}

// Rotate implements Store
func (m *MemoryStore) Rotate(_ context.Context, sess Session) error {
	s, ok := sess.(*memorySession)
	if !ok {
		return fmt.Errorf("session %s was not created by this store", sess.ID())
	}
	s.mu.Lock()
	old := s.id
	s.id = uuid.NewString()
	s.mu.Unlock()

	m.sessions.Remove(old)
	m.sessions.Add(s.ID(), s)
	return nil
}

// Destroy drops the session with id
func (m *MemoryStore) Destroy(id string) {
	m.sessions.Remove(id)
}

// Len returns the number of live sessions
func (m *MemoryStore) Len() int {
	return m.sessions.Len()
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	sess, ok := m.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Create implements Store
func (m *MemoryStore) Create(context.Context) (Session, error) {
	return m.New(), nil
}

// Save implements Store. Values live in the stored session already, so
// only a session that was evicted mid-request is re-added.
func (m *MemoryStore) Save(_ context.Context, sess Session) error {
	if s, ok := sess.(*memorySession); ok {
		if id := s.ID(); !m.sessions.Contains(id) {
			m.sessions.Add(id, s)
		}
	}
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.Destroy(id)
	return nil
}
