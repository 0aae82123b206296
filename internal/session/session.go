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

// Package session implements the Session Store (C2): per-conversation
// message history, tool-usage stats, and co-occurrence counts, persisted
// through the store package's append-only abstraction.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/toolgate/toolgate/internal/common"
)

// Session is per-conversation state. Field names mirror the wire/storage
// schema in spec.md §3.
type Session struct {
	SessionID     string                         `json:"session_id"`
	Messages      []common.Message               `json:"messages"`
	ToolUsage     map[string]*common.ToolUsage    `json:"tool_usage"`
	CoOccurrence  map[string]map[string]int       `json:"co_occurrence"`
	LastRouting   *common.RoutingDecision         `json:"last_routing,omitempty"`
	CreatedAt     time.Time                       `json:"created_at"`
	UpdatedAt     time.Time                       `json:"updated_at"`

	maxHistory int
	mu         sync.Mutex
}

func newSession(id string, maxHistory int) *Session {
	now := time.Now()
	return &Session{
		SessionID:    id,
		ToolUsage:    make(map[string]*common.ToolUsage),
		CoOccurrence: make(map[string]map[string]int),
		CreatedAt:    now,
		UpdatedAt:    now,
		maxHistory:   maxHistory,
	}
}

// AppendMessage appends msg to the session, evicting the oldest message
// FIFO-style once the configured window is exceeded.
func (s *Session) AppendMessage(msg common.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	max := s.maxHistory
	if max <= 0 {
		max = 100
	}
	if len(s.Messages) > max {
		s.Messages = s.Messages[len(s.Messages)-max:]
	}
	s.UpdatedAt = time.Now()
}

// RecentMessages returns the last n messages, oldest first.
func (s *Session) RecentMessages(n int) []common.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n >= len(s.Messages) {
		out := make([]common.Message, len(s.Messages))
		copy(out, s.Messages)
		return out
	}
	out := make([]common.Message, n)
	copy(out, s.Messages[len(s.Messages)-n:])
	return out
}

// RecordToolOutcome updates ToolUsage[qualifiedName] with one invocation's
// outcome. Invariant: successes + failures <= invocations, maintained by
// construction since every call increments exactly one of the two plus
// invocations.
func (s *Session) RecordToolOutcome(qualifiedName string, success bool, latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.ToolUsage[qualifiedName]
	if !ok {
		u = &common.ToolUsage{}
		s.ToolUsage[qualifiedName] = u
	}
	total := u.AvgLatencyMs * float64(u.Invocations)
	u.Invocations++
	if success {
		u.Successes++
	} else {
		u.Failures++
	}
	u.AvgLatencyMs = (total + latencyMs) / float64(u.Invocations)
	s.UpdatedAt = time.Now()
}

// RecordCoOccurrence bumps the symmetric co-occurrence count between every
// pair of tools in selected, per the Router's adaptive-learning update.
func (s *Session) RecordCoOccurrence(selected []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range selected {
		for j, b := range selected {
			if i == j {
				continue
			}
			if s.CoOccurrence[a] == nil {
				s.CoOccurrence[a] = make(map[string]int)
			}
			s.CoOccurrence[a][b]++
		}
	}
	s.UpdatedAt = time.Now()
}

// CoOccurrenceCount returns how often a and b have been selected together.
func (s *Session) CoOccurrenceCount(a, b string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.CoOccurrence[a]; ok {
		return m[b]
	}
	return 0
}

// UsageCount returns the invocation count recorded for qualifiedName.
func (s *Session) UsageCount(qualifiedName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.ToolUsage[qualifiedName]; ok {
		return u.Invocations
	}
	return 0
}

// SetLastRouting stores decision as the session's most recent routing
// result; used by the frontend to validate tools/call against the most
// recent tools/list.
func (s *Session) SetLastRouting(decision *common.RoutingDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastRouting = decision
	s.UpdatedAt = time.Now()
}

// LastRoutingGet returns the most recently set RoutingDecision, or nil.
func (s *Session) LastRoutingGet() *common.RoutingDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastRouting
}

// snapshot returns a value copy safe to serialize without holding s.mu.
func (s *Session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.Messages = append([]common.Message(nil), s.Messages...)
	return cp
}

// appendOnlyStore is the subset of store.AppendOnlyStore the session store
// depends on; declared locally to avoid an import cycle concern and keep
// the dependency narrow.
type appendOnlyStore interface {
	Append(ctx context.Context, partition string, record []byte) error
	ReadAll(ctx context.Context, partition string) ([][]byte, error)
}

// Store is a mapping from session_id to Session, backed by an append-only
// persistence abstraction. One mutex per session id serializes writes;
// a short-lived map lock guards insert/lookup only, per spec.md §5.
type Store struct {
	backend    appendOnlyStore
	maxHistory int

	mapMu    sync.Mutex
	sessions map[string]*Session
}

// NewStore constructs a Session Store writing through backend. maxHistory
// is the configured window cap (session.max_history), default 100.
func NewStore(backend appendOnlyStore, maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Store{
		backend:    backend,
		maxHistory: maxHistory,
		sessions:   make(map[string]*Session),
	}
}

// GetOrCreate returns the in-memory Session for id, replaying its durable
// event log on first access, or creates a fresh Session if none exists.
func (st *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	st.mapMu.Lock()
	defer st.mapMu.Unlock()

	if s, ok := st.sessions[id]; ok {
		return s, nil
	}
	s := newSession(id, st.maxHistory)
	if st.backend != nil {
		records, err := st.backend.ReadAll(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to replay session %s: %w", id, err)
		}
		for _, r := range records {
			var ev sessionEvent
			if err := json.Unmarshal(r, &ev); err != nil {
				continue
			}
			ev.applyTo(s)
		}
	}
	st.sessions[id] = s
	return s, nil
}

// AppendMessage appends msg to session id's history and persists the event.
func (st *Store) AppendMessage(ctx context.Context, id string, msg common.Message) error {
	s, err := st.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	s.AppendMessage(msg)
	return st.persist(ctx, id, sessionEvent{Kind: "message", Message: &msg})
}

// RecordToolOutcome records one tool-call outcome for session id and
// persists the event.
func (st *Store) RecordToolOutcome(ctx context.Context, id, qualifiedName string, success bool, latencyMs float64) error {
	s, err := st.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	s.RecordToolOutcome(qualifiedName, success, latencyMs)
	return st.persist(ctx, id, sessionEvent{
		Kind: "tool_outcome", QualifiedName: qualifiedName, Success: success, LatencyMs: latencyMs,
	})
}

// RecordCoOccurrence persists a co-occurrence update for session id.
func (st *Store) RecordCoOccurrence(ctx context.Context, id string, selected []string) error {
	s, err := st.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	s.RecordCoOccurrence(selected)
	return st.persist(ctx, id, sessionEvent{Kind: "co_occurrence", Selected: selected})
}

// SetLastRouting stores decision as session id's last routing result and
// persists the event.
func (st *Store) SetLastRouting(ctx context.Context, id string, decision *common.RoutingDecision) error {
	s, err := st.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	s.SetLastRouting(decision)
	return st.persist(ctx, id, sessionEvent{Kind: "last_routing", Routing: decision})
}

// ListRecent returns up to n in-memory sessions, most recently updated
// first.
func (st *Store) ListRecent(n int) []Session {
	st.mapMu.Lock()
	snaps := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		snaps = append(snaps, s.snapshot())
	}
	st.mapMu.Unlock()

	for i := 0; i < len(snaps); i++ {
		for j := i + 1; j < len(snaps); j++ {
			if snaps[j].UpdatedAt.After(snaps[i].UpdatedAt) {
				snaps[i], snaps[j] = snaps[j], snaps[i]
			}
		}
	}
	if n > 0 && n < len(snaps) {
		snaps = snaps[:n]
	}
	return snaps
}

// PruneOlderThan drops in-memory sessions last updated before ts. The
// durable log is left untouched; a pruned session id simply replays from
// its log on next access.
func (st *Store) PruneOlderThan(ts time.Time) {
	st.mapMu.Lock()
	defer st.mapMu.Unlock()
	for id, s := range st.sessions {
		s.mu.Lock()
		stale := s.UpdatedAt.Before(ts)
		s.mu.Unlock()
		if stale {
			delete(st.sessions, id)
		}
	}
}

func (st *Store) persist(ctx context.Context, id string, ev sessionEvent) error {
	if st.backend == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := st.backend.Append(ctx, id, data); err != nil {
		return fmt.Errorf("failed to persist session event for %s: %w", id, err)
	}
	return nil
}

// sessionEvent is the durable, replayable representation of one session
// mutation, the unit of record in the append-only log.
type sessionEvent struct {
	Kind          string                   `json:"kind"`
	Message       *common.Message          `json:"message,omitempty"`
	QualifiedName string                   `json:"qualified_name,omitempty"`
	Success       bool                     `json:"success,omitempty"`
	LatencyMs     float64                  `json:"latency_ms,omitempty"`
	Selected      []string                 `json:"selected,omitempty"`
	Routing       *common.RoutingDecision  `json:"routing,omitempty"`
}

func (ev sessionEvent) applyTo(s *Session) {
	switch ev.Kind {
	case "message":
		if ev.Message != nil {
			s.AppendMessage(*ev.Message)
		}
	case "tool_outcome":
		s.RecordToolOutcome(ev.QualifiedName, ev.Success, ev.LatencyMs)
	case "co_occurrence":
		s.RecordCoOccurrence(ev.Selected)
	case "last_routing":
		s.SetLastRouting(ev.Routing)
	}
}
