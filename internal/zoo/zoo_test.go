package zoo

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/embedding/mock"
)

func descriptor(server, local, desc string) common.ToolDescriptor {
	return common.ToolDescriptor{
		QualifiedName: server + "." + local,
		Server:        server,
		LocalName:     local,
		Description:   desc,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		},
		Tags: []string{server},
	}
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	d := descriptor("fs", "read_file", "Reads a file from disk. Returns its contents.")
	require.NoError(t, z.Index(ctx, d))

	got, ok := z.Get(d.QualifiedName)
	require.True(t, ok)
	require.Equal(t, d.QualifiedName, got.QualifiedName)
	require.Equal(t, "Use when: Reads a file from disk | Inputs: path*", got.AffordanceHint)
}

func TestIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	d := descriptor("fs", "read_file", "Reads a file.")
	require.NoError(t, z.Index(ctx, d))
	require.NoError(t, z.Index(ctx, d))
	require.Equal(t, 1, z.Stats().Total)
}

// TestReserveDiverseTopKKeepsMinorityServer verifies a majority server's
// higher-scoring tools cannot squeeze a minority server out of the
// candidate pool entirely, matching the expected split when a handful of
// servers compete for a small topK.
func TestReserveDiverseTopKKeepsMinorityServer(t *testing.T) {
	results := make([]Result, 0, 12)
	for i := 0; i < 10; i++ {
		results = append(results, Result{
			Descriptor: descriptor("a", "tool"+string(rune('0'+i)), "a tool"),
			Score:      1.0 - float64(i)*0.01,
		})
	}
	for i := 0; i < 2; i++ {
		results = append(results, Result{
			Descriptor: descriptor("b", "tool"+string(rune('0'+i)), "b tool"),
			Score:      0.5 - float64(i)*0.01,
		})
	}

	picked := reserveDiverseTopK(results, 5)
	require.Len(t, picked, 5)

	var aCount, bCount int
	for _, r := range picked {
		switch r.Descriptor.Server {
		case "a":
			aCount++
		case "b":
			bCount++
		}
	}
	require.Equal(t, 3, aCount)
	require.Equal(t, 2, bCount)
}

func TestReserveDiverseTopKSingleServerIsPlainTruncation(t *testing.T) {
	results := make([]Result, 0, 5)
	for i := 0; i < 5; i++ {
		results = append(results, Result{
			Descriptor: descriptor("a", "tool"+string(rune('0'+i)), "a tool"),
			Score:      1.0 - float64(i)*0.01,
		})
	}
	picked := reserveDiverseTopK(results, 3)
	require.Len(t, picked, 3)
	require.Equal(t, "a.tool0", picked[0].Descriptor.QualifiedName)
}

func TestSearchEmptyQuery(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file.")))
	results, err := z.Search(ctx, "", ModeLexical, 10, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchLexicalRanksMatchingTool(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.")))
	require.NoError(t, z.Index(ctx, descriptor("gh", "create_issue", "Creates a GitHub issue.")))

	results, err := z.Search(ctx, "read a file", ModeLexical, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "fs.read_file", results[0].Descriptor.QualifiedName)
}

func TestHybridDegradesToLexicalWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.")))
	results, err := z.Search(ctx, "read file", ModeHybrid, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestHybridUsesEmbedderWhenHealthy(t *testing.T) {
	ctx := context.Background()
	embedder := &mock.Provider{
		EmbedFunc: func(text string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	z := New(embedder, 0.4, zerolog.Nop())
	require.NoError(t, z.Index(ctx, descriptor("fs", "read_file", "Reads a file from disk.")))

	results, err := z.Search(ctx, "read a file", ModeHybrid, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestRemoveDeletesFromBothIndexes(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	d := descriptor("fs", "read_file", "Reads a file.")
	require.NoError(t, z.Index(ctx, d))
	z.Remove(d.QualifiedName)

	_, ok := z.Get(d.QualifiedName)
	require.False(t, ok)
	results, err := z.Search(ctx, "read file", ModeLexical, 10, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestIndexRejectsMismatchedQualifiedName(t *testing.T) {
	ctx := context.Background()
	z := New(nil, 0.4, zerolog.Nop())
	d := descriptor("fs", "read_file", "Reads a file.")
	d.QualifiedName = "wrong.name"
	err := z.Index(ctx, d)
	require.Error(t, err)
}
