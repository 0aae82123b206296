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

// Package store provides the persistence abstraction the rest of the
// gateway treats as an external collaborator: a key-value store for
// session records and tool-index records, plus a file-backed reference
// implementation that survives restart.
package store

import "context"

// KVStore is a minimal key-value abstraction. Keys are opaque strings
// (session ids, qualified tool names); values are pre-serialized bytes so
// callers choose their own encoding.
type KVStore interface {
	// Get returns the value for key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put writes value for key, replacing any prior value atomically.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key if present; absent keys are not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key currently stored, in no particular order.
	List(ctx context.Context) ([]string, error)
}

// AppendOnlyStore is a durable, monotonic event log keyed by a partition id
// (e.g. a session id). Writers append; the store never loses an event once
// Append returns nil, except for at most one trailing unflushed event
// across a crash (§4.2 invariant).
type AppendOnlyStore interface {
	// Append writes record to the end of partition's log.
	Append(ctx context.Context, partition string, record []byte) error
	// ReadAll returns every record appended to partition, in append order.
	ReadAll(ctx context.Context, partition string) ([][]byte, error)
}
