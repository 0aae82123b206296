package router

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/session"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

func descriptor(server, local, desc string, tags []string) common.ToolDescriptor {
	return common.ToolDescriptor{
		QualifiedName: server + "." + local,
		Server:        server,
		LocalName:     local,
		Description:   desc,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
		},
		Tags: tags,
	}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewStore(nil, 100)
	s, err := store.GetOrCreate(context.Background(), "sess-1")
	require.NoError(t, err)
	return s
}

func TestRouteRespectsMaxTools(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	for i := 0; i < 10; i++ {
		require.NoError(t, z.Index(ctx, descriptor("fs", "tool"+string(rune('a'+i)), "Reads a file from disk.", []string{"files"})))
	}
	sess := newTestSession(t)
	sess.AppendMessage(common.Message{Role: "user", Content: "read a file", Timestamp: time.Now()})

	r := New(z, nil, zerolog.Nop())
	cfg := Config{MaxTools: 3, MaxPerServer: 10, MinConfidence: 0}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.LessOrEqual(t, len(decision.Selected), 3)
}

func TestRouteRespectsMaxPerServer(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	for i := 0; i < 5; i++ {
		require.NoError(t, z.Index(ctx, descriptor("a", "tool"+string(rune('a'+i)), "Reads a file from disk.", nil)))
	}
	require.NoError(t, z.Index(ctx, descriptor("b", "toolx", "Reads a file from disk.", nil)))
	require.NoError(t, z.Index(ctx, descriptor("b", "tooly", "Reads a file from disk.", nil)))

	sess := newTestSession(t)
	sess.AppendMessage(common.Message{Role: "user", Content: "read a file", Timestamp: time.Now()})

	r := New(z, nil, zerolog.Nop())
	cfg := Config{MaxTools: 5, MaxPerServer: 2, MinConfidence: 0}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)

	counts := map[string]int{}
	for _, name := range decision.Selected {
		d, ok := z.Get(name)
		require.True(t, ok)
		counts[d.Server]++
	}
	for server, c := range counts {
		require.LessOrEqualf(t, c, 2, "server %s exceeded max_per_server", server)
	}
}

func TestRouteScoresInRange(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.", nil)))
	sess := newTestSession(t)
	sess.AppendMessage(common.Message{Role: "user", Content: "read a file", Timestamp: time.Now()})

	r := New(z, nil, zerolog.Nop())
	cfg := Config{MaxTools: 5, MaxPerServer: 5, MinConfidence: 0}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, decision.Confidence, 0.0)
	require.LessOrEqual(t, decision.Confidence, 1.0)
	for _, score := range decision.Scores {
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestRouteEmptyQueryYieldsEmptyFallback(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.", nil)))
	sess := newTestSession(t) // no messages appended: query construction yields ""

	r := New(z, nil, zerolog.Nop())
	cfg := Config{MaxTools: 5, MaxPerServer: 5, MinConfidence: 0.5, FallbackTools: []string{"fs.read_file"}}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.Empty(t, decision.Candidates)
	require.Equal(t, 0.0, decision.Confidence)
	require.True(t, decision.TriggeredFallback)
	require.Equal(t, []string{"fs.read_file"}, decision.Selected)
}

func TestRouteLowConfidenceTriggersFallback(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.", nil)))
	require.NoError(t, z.Index(ctx, descriptor("fs", "list_directory", "Lists a directory.", nil)))

	sess := newTestSession(t)
	sess.AppendMessage(common.Message{Role: "user", Content: "what is the weather today", Timestamp: time.Now()})

	r := New(z, nil, zerolog.Nop())
	cfg := Config{
		MaxTools: 5, MaxPerServer: 5, MinConfidence: 0.99,
		FallbackTools: []string{"fs.read_file", "fs.list_directory"},
	}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.True(t, decision.TriggeredFallback)
	require.Equal(t, []string{"fs.read_file", "fs.list_directory"}, decision.Selected)
	require.Less(t, decision.Confidence, 0.99)
}

func TestRouteFallbackIntersectsAvailable(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.", nil)))

	sess := newTestSession(t)
	r := New(z, nil, zerolog.Nop())
	cfg := Config{
		MaxTools: 5, MaxPerServer: 5, MinConfidence: 0.5,
		FallbackTools: []string{"fs.read_file", "gh.create_issue"},
	}
	decision, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.Equal(t, []string{"fs.read_file"}, decision.Selected)
}

func TestRouteDeterministic(t *testing.T) {
	ctx := context.Background()
	z := zoo.New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.", []string{"files"})))
	require.NoError(t, z.Index(ctx, descriptor("gh", "create_issue", "Creates a GitHub issue.", []string{"code"})))

	sess := newTestSession(t)
	sess.AppendMessage(common.Message{Role: "user", Content: "create a github issue", Timestamp: time.Now()})

	r := New(z, nil, zerolog.Nop())
	cfg := Config{MaxTools: 5, MaxPerServer: 5, MinConfidence: 0}

	d1, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	d2, err := r.Route(ctx, sess, cfg, telemetry.Correlation{})
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestDetectDomainsActivatesCodeDomain(t *testing.T) {
	active := detectDomains("please create a github issue for this")
	require.True(t, active["code"])
	require.False(t, active["email"])
}
