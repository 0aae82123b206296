// Copyright 2025 Toolgate Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at.
//
//     http://www.apache.org/licenses/LICENSE-2.0.
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package zoo implements the Tool Zoo (C3): the canonical registry of every
// discovered ToolDescriptor, backed by a lexical inverted index and a
// vector (embedding) index, searchable in lexical, semantic, or hybrid
// mode.
package zoo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/embedding"
)

// Mode selects which index search draws candidates from.
type Mode string

const (
	ModeLexical Mode = "lexical"
	ModeVector  Mode = "vector"
	ModeHybrid  Mode = "hybrid"
)

// Result is one (descriptor, score) pair returned from a search.
type Result struct {
	Descriptor common.ToolDescriptor
	Score      float64
}

// Stats summarizes the zoo's current contents.
type Stats struct {
	Total         int
	PerServer     map[string]int
	EmbeddedCount int
}

// Zoo holds every known ToolDescriptor plus its two indexes. Read-mostly:
// Search/Get take a read lock, Index/Remove take a write lock.
type Zoo struct {
	mu         sync.RWMutex
	descriptors map[string]*common.ToolDescriptor
	lexical     *lexicalIndex
	embedder    embedding.Provider
	alpha       float64
	logger      zerolog.Logger

	embedderHealthy bool
}

// New constructs an empty Zoo. embedder may be nil, in which case the zoo
// runs lexical-only (hybrid mode degrades silently to lexical), per
// spec.md §4.3's failure semantics. alpha is the hybrid-scoring weight
// (default 0.4 if <= 0).
func New(embedder embedding.Provider, alpha float64, logger zerolog.Logger) *Zoo {
	if alpha <= 0 {
		alpha = 0.4
	}
	return &Zoo{
		descriptors:     make(map[string]*common.ToolDescriptor),
		lexical:         newLexicalIndex(),
		embedder:        embedder,
		alpha:           alpha,
		logger:          logger,
		embedderHealthy: embedder != nil,
	}
}

// Index inserts d, computing its embedding if missing and the embedder is
// available, and (re)computing its affordance hint. Re-indexing the same
// QualifiedName atomically replaces the prior record (invariant: idempotent
// stats under repeated indexing of the same descriptor).
func (z *Zoo) Index(ctx context.Context, d common.ToolDescriptor) error {
	if d.QualifiedName != d.Server+"."+d.LocalName {
		return fmt.Errorf("qualified_name %q does not match server.local_name %q.%q", d.QualifiedName, d.Server, d.LocalName)
	}
	if err := validateInputSchema(d.InputSchema); err != nil {
		return fmt.Errorf("invalid input_schema for %s: %w", d.QualifiedName, err)
	}
	d.AffordanceHint = computeAffordanceHint(d)

	if len(d.Embedding) == 0 && z.embedder != nil {
		vec, err := z.embedder.Embed(ctx, embeddingText(d))
		if err != nil {
			z.mu.Lock()
			z.embedderHealthy = false
			z.mu.Unlock()
			z.logger.Warn().Err(err).Str("tool", d.QualifiedName).Msg("embedding computation failed, indexing lexical-only")
		} else {
			d.Embedding = vec
		}
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	cp := d
	z.descriptors[d.QualifiedName] = &cp
	z.lexical.index(cp)
	return nil
}

// Remove deletes qualifiedName from both indexes. Absent names are a no-op.
func (z *Zoo) Remove(qualifiedName string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	delete(z.descriptors, qualifiedName)
	z.lexical.remove(qualifiedName)
}

// Get returns a copy of the descriptor for qualifiedName, or ok=false.
func (z *Zoo) Get(qualifiedName string) (common.ToolDescriptor, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	d, ok := z.descriptors[qualifiedName]
	if !ok {
		return common.ToolDescriptor{}, false
	}
	return *d, true
}

// Stats summarizes the zoo's current contents.
func (z *Zoo) Stats() Stats {
	z.mu.RLock()
	defer z.mu.RUnlock()
	st := Stats{Total: len(z.descriptors), PerServer: make(map[string]int)}
	for _, d := range z.descriptors {
		st.PerServer[d.Server]++
		if len(d.Embedding) > 0 {
			st.EmbeddedCount++
		}
	}
	return st
}

// Search returns up to topK descriptors matching query in mode, filtered by
// minScore. An empty query always returns an empty list.
func (z *Zoo) Search(ctx context.Context, query string, mode Mode, topK int, minScore float64) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	effectiveMode := mode
	if effectiveMode == ModeHybrid && !z.embedderHealthy {
		effectiveMode = ModeLexical
	}
	if effectiveMode == ModeVector && !z.embedderHealthy {
		return nil, nil
	}

	lexScores := z.lexical.score(query)

	var queryVec []float32
	var vecErr error
	if effectiveMode != ModeLexical && z.embedder != nil {
		queryVec, vecErr = z.embedder.Embed(ctx, query)
		if vecErr != nil {
			effectiveMode = ModeLexical
		}
	}

	results := make([]Result, 0, len(z.descriptors))
	for name, d := range z.descriptors {
		var score float64
		switch effectiveMode {
		case ModeLexical:
			score = lexScores[name]
		case ModeVector:
			score = cosineRemap(queryVec, d.Embedding)
		default: // hybrid
			sem := cosineRemap(queryVec, d.Embedding)
			score = z.alpha*lexScores[name] + (1-z.alpha)*sem
		}
		if score >= minScore {
			results = append(results, Result{Descriptor: *d, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Descriptor.Server != results[j].Descriptor.Server {
			return results[i].Descriptor.Server < results[j].Descriptor.Server
		}
		return results[i].Descriptor.QualifiedName < results[j].Descriptor.QualifiedName
	})

	if topK > 0 && len(results) > topK {
		results = reserveDiverseTopK(results, topK)
	}
	return results, nil
}

// reserveDiverseTopK truncates results (already sorted best-first) to topK,
// reserving topK/serverCount slots per distinct server before filling the
// remainder by global score. A plain top-K cut lets one high-scoring server
// fill the whole candidate pool and squeeze every other server out before
// the Router's per-server diversity filter ever runs; reserving a floor per
// server keeps minority servers in the pool the filter sees.
func reserveDiverseTopK(results []Result, topK int) []Result {
	servers := make(map[string]struct{})
	for _, r := range results {
		servers[r.Descriptor.Server] = struct{}{}
	}
	if len(servers) <= 1 {
		return results[:topK]
	}

	reserve := topK / len(servers)
	if reserve < 1 {
		reserve = 1
	}

	picked := make([]Result, 0, topK)
	pickedNames := make(map[string]struct{}, topK)
	perServer := make(map[string]int, len(servers))

	for _, r := range results {
		if len(picked) >= topK {
			break
		}
		if perServer[r.Descriptor.Server] < reserve {
			picked = append(picked, r)
			pickedNames[r.Descriptor.QualifiedName] = struct{}{}
			perServer[r.Descriptor.Server]++
		}
	}
	for _, r := range results {
		if len(picked) >= topK {
			break
		}
		if _, ok := pickedNames[r.Descriptor.QualifiedName]; ok {
			continue
		}
		picked = append(picked, r)
		pickedNames[r.Descriptor.QualifiedName] = struct{}{}
	}

	sort.Slice(picked, func(i, j int) bool {
		if picked[i].Score != picked[j].Score {
			return picked[i].Score > picked[j].Score
		}
		if picked[i].Descriptor.Server != picked[j].Descriptor.Server {
			return picked[i].Descriptor.Server < picked[j].Descriptor.Server
		}
		return picked[i].Descriptor.QualifiedName < picked[j].Descriptor.QualifiedName
	})
	return picked
}

// cosineRemap computes cosine similarity between a and b, remapped to
// [0,1] via (cos+1)/2. Returns 0 if either vector is empty or zero-length.
func cosineRemap(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

func embeddingText(d common.ToolDescriptor) string {
	return d.LocalName + " " + d.Description + " " + strings.Join(d.Tags, " ")
}
