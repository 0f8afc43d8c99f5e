// Package session keeps per-session chat transcripts in memory and builds the
// model prompt from them.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// Defaults for MemoryStore.
const (
	DefaultMaxEntries  = 50
	DefaultMaxSessions = 10000

	// DefaultSystemPrompt opens every transcript.
	DefaultSystemPrompt = "You are an assistant that helps find books."
)

// Store holds chat transcripts by session id.
type Store interface {
	// Get returns a copy of the transcript, or nil for an unknown session.
	Get(ctx context.Context, id string) ([]domain.ChatEntry, error)

	// Append adds entries to the transcript, creating the session if needed.
	Append(ctx context.Context, id string, entries ...domain.ChatEntry) error
}

// Config bounds a MemoryStore.
type Config struct {
	MaxEntries   int    `mapstructure:"max_entries"`
	MaxSessions  int    `mapstructure:"max_sessions"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type transcript struct {
	entries []domain.ChatEntry
}

// MemoryStore is an LRU-bounded Store. Each transcript keeps at most
// MaxEntries entries, dropping the oldest. When MaxSessions is reached the
// least recently used session is evicted. Concurrent appends to one session
// are applied in lock order.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   *lru.Cache[string, *transcript]
	maxEntries int
}

// NewMemoryStore creates a MemoryStore. Zero config values take the defaults.
func NewMemoryStore(cfg Config) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	// lru.New only fails for a non-positive size.
	sessions, _ := lru.New[string, *transcript](cfg.MaxSessions)
	return &MemoryStore{
		sessions:   sessions,
		maxEntries: cfg.MaxEntries,
	}
}

// Get returns a copy of the transcript for id.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]domain.ChatEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	out := make([]domain.ChatEntry, len(t.entries))
	copy(out, t.entries)
	return out, nil
}

// Append adds entries to the transcript for id.
func (s *MemoryStore) Append(ctx context.Context, id string, entries ...domain.ChatEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return domain.NewValidationError("session_id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions.Get(id)
	if !ok {
		t = &transcript{}
		s.sessions.Add(id, t)
	}

	t.entries = append(t.entries, entries...)
	if over := len(t.entries) - s.maxEntries; over > 0 {
		t.entries = append([]domain.ChatEntry(nil), t.entries[over:]...)
	}
	return nil
}

// Len returns the number of sessions held.
func (s *MemoryStore) Len() int {
	return s.sessions.Len()
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.New().String()
}

// promptTurns is how many trailing transcript entries are sent to the model.
const promptTurns = 2

// BuildPrompt renders the system prompt and the last two transcript entries
// as "ROLE: content" lines. System entries in the transcript are skipped.
func BuildPrompt(entries []domain.ChatEntry, systemPrompt string) string {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	turns := make([]domain.ChatEntry, 0, len(entries))
	for _, e := range entries {
		if e.Role != domain.ChatRoleSystem {
			turns = append(turns, e)
		}
	}
	if len(turns) > promptTurns {
		turns = turns[len(turns)-promptTurns:]
	}

	lines := make([]string, 0, len(turns)+1)
	lines = append(lines, fmt.Sprintf("SYSTEM: %s", systemPrompt))
	for _, e := range turns {
		role := strings.ToUpper(string(e.Role))
		if role == "" {
			role = "USER"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, e.Content))
	}
	return strings.Join(lines, "\n")
}
