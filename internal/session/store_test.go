package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

func user(s string) domain.ChatEntry { return domain.ChatEntry{Role: domain.ChatRoleUser, Content: s} }
func assistant(s string) domain.ChatEntry {
	return domain.ChatEntry{Role: domain.ChatRoleAssistant, Content: s}
}

func TestMemoryStore_AppendGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{})
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Append(ctx, "a", user("hi")))
	require.NoError(t, s.Append(ctx, "a", assistant("hello"), user("books?")))

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatEntry{user("hi"), assistant("hello"), user("books?")}, got)

	// Returned slices are copies.
	got[0].Content = "changed"
	again, _ := s.Get(ctx, "a")
	assert.Equal(t, "hi", again[0].Content)
}

func TestMemoryStore_BoundsEntries(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{MaxEntries: 3})
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, s.Append(ctx, "a", user(fmt.Sprint(i))))
	}

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatEntry{user("2"), user("3"), user("4")}, got)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{MaxSessions: 2})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", user("1")))
	require.NoError(t, s.Append(ctx, "b", user("1")))
	require.NoError(t, s.Append(ctx, "a", user("2")))
	require.NoError(t, s.Append(ctx, "c", user("1")))

	assert.Equal(t, 2, s.Len())
	b, _ := s.Get(ctx, "b")
	assert.Nil(t, b)
	a, _ := s.Get(ctx, "a")
	assert.Len(t, a, 2)
}

func TestMemoryStore_ReadCountsAsUse(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{MaxSessions: 2})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", user("1")))
	require.NoError(t, s.Append(ctx, "b", user("1")))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "c", user("1")))

	a, _ := s.Get(ctx, "a")
	assert.Len(t, a, 1)
	b, _ := s.Get(ctx, "b")
	assert.Nil(t, b)
}

func TestMemoryStore_ManySessionsStayBounded(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{MaxSessions: 100})
	ctx := context.Background()
	for i := range 1000 {
		require.NoError(t, s.Append(ctx, fmt.Sprint(i), user("x")))
	}

	assert.Equal(t, 100, s.Len())
	first, _ := s.Get(ctx, "0")
	assert.Nil(t, first)
	last, _ := s.Get(ctx, "999")
	assert.Len(t, last, 1)
}

func TestMemoryStore_EmptyID(t *testing.T) {
	t.Parallel()

	err := NewMemoryStore(Config{}).Append(context.Background(), "", user("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore(Config{})
	assert.ErrorIs(t, s.Append(ctx, "a", user("x")), context.Canceled)
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Config{MaxEntries: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, "shared", user(fmt.Sprint(i)), assistant(fmt.Sprint(i)))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, got, 100)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, got[i].Content, got[i+1].Content, "entries of one append stay adjacent")
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []domain.ChatEntry
		system  string
		want    string
	}{
		{
			name:    "first message",
			entries: []domain.ChatEntry{user("sci-fi please")},
			want:    "SYSTEM: You are an assistant that helps find books.\nUSER: sci-fi please",
		},
		{
			name: "keeps last two turns",
			entries: []domain.ChatEntry{
				{Role: domain.ChatRoleSystem, Content: "ignored"},
				user("sci-fi"),
				assistant(`[{"title":"Dune"}]`),
				user("something shorter"),
			},
			system: "Custom.",
			want:   "SYSTEM: Custom.\nASSISTANT: [{\"title\":\"Dune\"}]\nUSER: something shorter",
		},
		{
			name: "empty transcript",
			want: "SYSTEM: You are an assistant that helps find books.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BuildPrompt(tt.entries, tt.system))
		})
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()

	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
