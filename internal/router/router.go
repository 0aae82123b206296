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

// Package router implements the Router (C4): a deterministic, single-pass
// pipeline from session context to a RoutingDecision, per spec.md §4.4.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/session"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

// Config holds the Router's tunables. Fields mirror config.RouterConfig
// (the recognized on-disk config surface, §6.4) plus a handful of
// pipeline-internal constants the spec leaves as implementation defaults
// rather than named config keys (recent-message count, query character
// budget, candidate-pool multiplier).
type Config struct {
	MaxTools          int
	MaxPerServer      int
	MinConfidence     float64
	FallbackTools     []string
	DomainBoost       float64
	UsageBoost        float64
	CooccurrenceBoost float64
	EnableLearning    bool

	// UsageSaturation is the usage_count denominator in the usage boost's
	// min(1, usage_count/saturation) term.
	UsageSaturation float64
	// RecentMessages is N in "concatenate the last N messages" (default 5).
	RecentMessages int
	// QueryCharBudget truncates the constructed query to its last N
	// characters (default 2000), keeping the most recent content.
	QueryCharBudget int
	// KCandMultiplier sets K_cand = KCandMultiplier * MaxTools (default 4).
	KCandMultiplier int
	// MinScore is the zoo.Search floor applied at candidate retrieval.
	MinScore float64
}

func (c Config) withDefaults() Config {
	if c.MaxTools <= 0 {
		c.MaxTools = 10
	}
	if c.MaxPerServer <= 0 {
		c.MaxPerServer = 10
	}
	if c.UsageSaturation <= 0 {
		c.UsageSaturation = 10
	}
	if c.RecentMessages <= 0 {
		c.RecentMessages = 5
	}
	if c.QueryCharBudget <= 0 {
		c.QueryCharBudget = 2000
	}
	if c.KCandMultiplier <= 0 {
		c.KCandMultiplier = 4
	}
	return c
}

// Router turns session context into a RoutingDecision by querying the Tool
// Zoo and re-ranking its candidates. It owns no persistent state of its
// own beyond a reference to the zoo it searches.
type Router struct {
	zoo     *zoo.Zoo
	bus     *telemetry.Bus
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// New constructs a Router over zoo, emitting RouterFallback events to bus
// (which may be nil).
func New(z *zoo.Zoo, bus *telemetry.Bus, logger zerolog.Logger) *Router {
	return &Router{zoo: z, bus: bus, logger: logger}
}

// SetMetrics attaches the OTel instruments Route reports its latency and
// fallback rate through. Passing nil leaves metrics recording disabled.
func (r *Router) SetMetrics(m *telemetry.Metrics) {
	r.metrics = m
}

// Route runs the full pipeline (query construction -> domain detection ->
// candidate retrieval -> re-ranking+diversity filter -> confidence ->
// fallback) and returns the resulting RoutingDecision. Given fixed inputs
// (session snapshot, zoo contents, cfg, and a deterministic embedder) two
// calls produce byte-equal decisions: the only sources of non-determinism
// control is sort order (zoo.Search breaks score ties by server, then
// qualified_name; the final re-sort here breaks them by qualified_name) and
// map iteration (only ever used for set-membership tests, never ordering).
func (r *Router) Route(ctx context.Context, sess *session.Session, cfg Config, corr telemetry.Correlation) (*common.RoutingDecision, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "router.route")
	defer span.End()
	start := time.Now()

	cfg = cfg.withDefaults()

	query := r.buildQuery(sess, cfg)
	active := detectDomains(query)

	kCand := cfg.MaxTools * cfg.KCandMultiplier
	candidates, err := r.zoo.Search(ctx, query, zoo.ModeHybrid, kCand, cfg.MinScore)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRouting(ctx, time.Since(start).Seconds(), false)
		}
		return nil, fmt.Errorf("candidate retrieval failed: %w", err)
	}

	candidateNames := make([]string, 0, len(candidates))
	for _, c := range candidates {
		candidateNames = append(candidateNames, c.Descriptor.QualifiedName)
	}

	scores := make(map[string]float64, len(candidates))
	selected := make([]string, 0, cfg.MaxTools)
	serverCounts := make(map[string]int)

	for _, cand := range candidates {
		d := cand.Descriptor
		adjusted := cand.Score

		if domainMatches(active, d.Tags) {
			adjusted += cfg.DomainBoost
		}

		usage := sess.UsageCount(d.QualifiedName)
		adjusted += cfg.UsageBoost * min1(float64(usage)/cfg.UsageSaturation)

		for _, sel := range selected {
			if sess.CoOccurrenceCount(sel, d.QualifiedName) > 0 {
				adjusted += cfg.CooccurrenceBoost
			}
		}

		adjusted = clip01(adjusted)
		scores[d.QualifiedName] = adjusted

		if len(selected) >= cfg.MaxTools {
			continue
		}
		if serverCounts[d.Server] >= cfg.MaxPerServer {
			continue
		}
		selected = append(selected, d.QualifiedName)
		serverCounts[d.Server]++
	}

	// Re-sort selected by adjusted score (boosts can reorder relative to the
	// base hybrid-score order zoo.Search returned), ties by qualified name.
	sort.SliceStable(selected, func(i, j int) bool {
		si, sj := scores[selected[i]], scores[selected[j]]
		if si != sj {
			return si > sj
		}
		return selected[i] < selected[j]
	})

	confidence := computeConfidence(selected, scores)

	decision := &common.RoutingDecision{
		Selected:          selected,
		Scores:            scores,
		Candidates:        candidateNames,
		QueryUsed:         query,
		Confidence:        confidence,
		TriggeredFallback: false,
		Reasoning:         reasoning(active, len(candidates), false),
	}

	if confidence < cfg.MinConfidence {
		fallback := r.intersectAvailable(cfg.FallbackTools)
		decision.Selected = fallback
		decision.TriggeredFallback = true
		decision.Reasoning = reasoning(active, len(candidates), true)

		if r.bus != nil {
			r.bus.Emit(telemetry.RouterFallback(corr, decision.Reasoning, confidence))
		}
	}

	if r.metrics != nil {
		r.metrics.RecordRouting(ctx, time.Since(start).Seconds(), decision.TriggeredFallback)
	}

	return decision, nil
}

// buildQuery concatenates the session's last cfg.RecentMessages messages,
// role-prefixed, and truncates to cfg.QueryCharBudget characters, keeping
// the most recent content when truncation is needed.
func (r *Router) buildQuery(sess *session.Session, cfg Config) string {
	messages := sess.RecentMessages(cfg.RecentMessages)
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Role+": "+m.Content)
	}
	query := strings.Join(parts, "\n")
	if len(query) > cfg.QueryCharBudget {
		query = query[len(query)-cfg.QueryCharBudget:]
	}
	return query
}

// intersectAvailable filters fallbackTools down to those the zoo currently
// knows about, preserving fallbackTools' configured order.
func (r *Router) intersectAvailable(fallbackTools []string) []string {
	out := make([]string, 0, len(fallbackTools))
	for _, name := range fallbackTools {
		if _, ok := r.zoo.Get(name); ok {
			out = append(out, name)
		}
	}
	return out
}

// RecordAdaptiveLearning applies the post-call update spec.md §4.4
// describes: for every pair of tools in the last successfully-used
// selection, bump their symmetric co-occurrence count. Never mutates
// descriptors; never removes tools. A no-op if learning is disabled.
func (r *Router) RecordAdaptiveLearning(ctx context.Context, store *session.Store, sessionID string, selected []string, cfg Config) error {
	if !cfg.EnableLearning || len(selected) < 2 {
		return nil
	}
	return store.RecordCoOccurrence(ctx, sessionID, selected)
}

func domainMatches(active map[string]bool, tags []string) bool {
	for _, t := range tags {
		if active[t] {
			return true
		}
	}
	return false
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// computeConfidence implements clip01((top_score + mean_selected_score)/2),
// or 0 if nothing was selected.
func computeConfidence(selected []string, scores map[string]float64) float64 {
	if len(selected) == 0 {
		return 0
	}
	top := scores[selected[0]]
	var sum float64
	for _, name := range selected {
		sum += scores[name]
	}
	mean := sum / float64(len(selected))
	return clip01((top + mean) / 2)
}

func reasoning(active map[string]bool, candidateCount int, fallback bool) string {
	domains := make([]string, 0, len(active))
	for d := range active {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	domainStr := "none"
	if len(domains) > 0 {
		domainStr = strings.Join(domains, ",")
	}
	if fallback {
		return fmt.Sprintf("domain=%s; %d candidates; confidence below threshold, fallback triggered", domainStr, candidateCount)
	}
	return fmt.Sprintf("domain=%s; %d candidates", domainStr, candidateCount)
}
