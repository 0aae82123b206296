package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := store.NewFileAppendStore(t.TempDir())
	require.NoError(t, err)
	return NewStore(backend, 3)
}

func TestAppendMessageCapsWindowFIFO(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendMessage(ctx, "s1", common.Message{Role: "user", Content: string(rune('a' + i))}))
	}
	s, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	msgs := s.RecentMessages(0)
	require.Len(t, msgs, 3)
	require.Equal(t, "c", msgs[0].Content)
	require.Equal(t, "e", msgs[2].Content)
}

func TestRecordToolOutcomeInvariant(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RecordToolOutcome(ctx, "s1", "fs.read_file", true, 10))
	require.NoError(t, st.RecordToolOutcome(ctx, "s1", "fs.read_file", false, 20))

	s, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	u := s.ToolUsage["fs.read_file"]
	require.Equal(t, 2, u.Invocations)
	require.LessOrEqual(t, u.Successes+u.Failures, u.Invocations)
}

func TestPersistenceSurvivesReplay(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewFileAppendStore(t.TempDir())
	require.NoError(t, err)

	st1 := NewStore(backend, 100)
	require.NoError(t, st1.AppendMessage(ctx, "s1", common.Message{Role: "user", Content: "hi"}))
	require.NoError(t, st1.RecordToolOutcome(ctx, "s1", "fs.read_file", true, 5))

	st2 := NewStore(backend, 100)
	s, err := st2.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.RecentMessages(0), 1)
	require.Equal(t, 1, s.ToolUsage["fs.read_file"].Invocations)
}

func TestCoOccurrenceSymmetric(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RecordCoOccurrence(ctx, "s1", []string{"a.x", "b.y"}))

	s, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, s.CoOccurrenceCount("a.x", "b.y"))
	require.Equal(t, 1, s.CoOccurrenceCount("b.y", "a.x"))
}

func TestPruneOlderThan(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	st.PruneOlderThan(time.Now().Add(time.Hour))
	require.Empty(t, st.ListRecent(0))
}
