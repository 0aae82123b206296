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

package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

// Options tunes the pool's retry and failure-isolation behavior. Zero values
// are replaced by sane defaults in New.
type Options struct {
	FailureBudget int           // consecutive failures tolerated before Dead
	BackoffBase   time.Duration // initial retry backoff
	BackoffCap    time.Duration // maximum retry backoff
	CallTimeout   time.Duration // default per-call timeout if none given
	MaxRetries    int           // default retry count if none given
}

func (o Options) withDefaults() Options {
	if o.FailureBudget <= 0 {
		o.FailureBudget = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 2
	}
	return o
}

// Pool owns every downstream server's handle, and routes qualified-name
// lookups and tools/call traffic to the owning handle. This is the Connection
// Pool, C5.
type Pool struct {
	mu       sync.RWMutex
	handles  map[string]*handle
	registry map[string]string // qualified_name -> server

	zoo     *zoo.Zoo
	bus     *telemetry.Bus
	logger  zerolog.Logger
	options Options
	metrics *telemetry.Metrics
}

// SetMetrics attaches the OTel instruments Call and state transitions report
// through. Passing nil leaves metrics recording disabled.
func (p *Pool) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// New constructs a Pool over the given zoo (tools discovered at start_all
// are indexed into it) and telemetry bus (state changes are emitted to it).
func New(z *zoo.Zoo, bus *telemetry.Bus, logger zerolog.Logger, opts Options) *Pool {
	return &Pool{
		handles:  make(map[string]*handle),
		registry: make(map[string]string),
		zoo:      z,
		bus:      bus,
		logger:   logger,
		options:  opts.withDefaults(),
	}
}

// StartAll spawns every configured downstream server concurrently,
// discovers its tools, and indexes them into the Tool Zoo. Failure to start
// one server does not prevent the others from becoming Ready: every
// per-server error is collected and returned jointly, but a partial pool is
// still usable.
func (p *Pool) StartAll(ctx context.Context, specs map[string]common.SpawnSpec) error {
	p.mu.Lock()
	for name, spec := range specs {
		p.handles[name] = newHandle(name, spec, p.options.FailureBudget, p.options.BackoffBase, p.options.BackoffCap, p.logger, p.emitStateChange)
	}
	handlesSnapshot := make([]*handle, 0, len(p.handles))
	for _, h := range p.handles {
		handlesSnapshot = append(handlesSnapshot, h)
	}
	p.mu.Unlock()

	var errsMu sync.Mutex
	var errs []error
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlesSnapshot {
		h := h
		g.Go(func() error {
			if err := h.start(gctx, nil); err != nil {
				p.logger.Error().Err(err).Str("server", h.name).Msg("downstream server failed to start")
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("server %q: %w", h.name, err))
				errsMu.Unlock()
				return nil // one server failing does not abort the others
			}
			p.indexHandleTools(gctx, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// ReconnectAll re-establishes every downstream connection with headers
// captured from the client's initialize call merged over each server's own
// configured headers (C1.4's per-session downstream reconnect fan-out).
// Like StartAll, one server's failure does not abort the others.
func (p *Pool) ReconnectAll(ctx context.Context, headers map[string]string) error {
	p.mu.RLock()
	handlesSnapshot := make([]*handle, 0, len(p.handles))
	for _, h := range p.handles {
		handlesSnapshot = append(handlesSnapshot, h)
	}
	p.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlesSnapshot {
		h := h
		g.Go(func() error {
			h.close()
			if err := h.start(gctx, headers); err != nil {
				p.logger.Error().Err(err).Str("server", h.name).Msg("downstream server failed to reconnect")
				return nil
			}
			p.indexHandleTools(gctx, h)
			return nil
		})
	}
	return g.Wait()
}

// indexHandleTools registers h's discovered tools in the pool's own
// qualified-name registry and in the Tool Zoo.
func (p *Pool) indexHandleTools(ctx context.Context, h *handle) {
	h.mu.Lock()
	tools := append([]common.ToolDescriptor(nil), h.tools...)
	h.mu.Unlock()

	p.mu.Lock()
	for _, t := range tools {
		p.registry[t.QualifiedName] = t.Server
	}
	p.mu.Unlock()

	if p.zoo == nil {
		return
	}
	for _, t := range tools {
		if err := p.zoo.Index(ctx, t); err != nil {
			p.logger.Warn().Err(err).Str("tool", t.QualifiedName).Msg("failed to index downstream tool")
		}
	}
}

// emitStateChange is handle's onChange callback: it logs and, if a bus is
// configured, emits a DownstreamStateChange trace event.
func (p *Pool) emitStateChange(server, from, to string) {
	p.logger.Info().Str("server", server).Str("from", from).Str("to", to).Msg("downstream server state change")
	if p.metrics != nil {
		p.metrics.RecordDownstreamStateChange(context.Background(), server, from, to)
	}
	if p.bus == nil {
		return
	}
	corr := telemetry.Correlation{TraceID: "", RequestID: "", Timestamp: time.Now()}
	p.bus.Emit(telemetry.DownstreamStateChange(corr, server, from, to))
}

// GetTool resolves qualifiedName to its owning server name, or ok=false if
// no known tool carries that name.
func (p *Pool) GetTool(qualifiedName string) (server string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	server, ok = p.registry[qualifiedName]
	return server, ok
}

// States returns a snapshot of every known server's current state, for
// health reporting. The Router does not consult it: a server's tools stay
// eligible for routing whatever that server's state.
func (p *Pool) States() map[string]common.ServerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]common.ServerState, len(p.handles))
	for name, h := range p.handles {
		out[name] = h.getState()
	}
	return out
}

// Call proxies a tools/call for qualifiedName to its owning server,
// retrying transport failures up to maxRetries times with exponential
// backoff. A non-retryable downstream tool error (the server responded,
// just with IsError=true) returns immediately, per spec.md §4.5's retry
// semantics: only transport/timeout failures are retried, not tool-level
// errors.
func (p *Pool) Call(ctx context.Context, qualifiedName string, args map[string]any, timeout time.Duration, maxRetries int) (result *mcp.CallToolResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pool.call")
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordToolCall(ctx, qualifiedName, time.Since(start).Seconds(), err == nil)
		}
		span.End()
	}()

	if timeout <= 0 {
		timeout = p.options.CallTimeout
	}
	if maxRetries <= 0 {
		maxRetries = p.options.MaxRetries
	}

	serverName, ok := p.GetTool(qualifiedName)
	if !ok {
		return nil, common.NewGatewayError(common.ErrToolNotFound, fmt.Sprintf("no downstream server owns tool %q", qualifiedName), nil)
	}

	p.mu.RLock()
	h, ok := p.handles[serverName]
	p.mu.RUnlock()
	if !ok {
		return nil, common.NewGatewayError(common.ErrServerUnavailable, fmt.Sprintf("server %q is not registered", serverName), nil)
	}

	localName := strings.TrimPrefix(qualifiedName, serverName+".")

	state := h.getState()
	if state == common.StateDead {
		return nil, common.NewGatewayError(common.ErrServerUnavailable, fmt.Sprintf("server %q is dead", serverName), nil)
	}

	var lastErr error
	lastTimedOut := false
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, p.options.BackoffBase, p.options.BackoffCap)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, common.NewGatewayError(common.ErrToolExecutionTimeout, "call cancelled while backing off", ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := h.callTool(callCtx, localName, args)
		cancel()

		if err == nil {
			h.mu.Lock()
			h.consecutiveFailures = 0
			h.mu.Unlock()
			if h.getState() == common.StateFailing {
				h.setState(common.StateReady)
			}
			return result, nil
		}

		lastErr = err
		lastTimedOut = errors.Is(callCtx.Err(), context.DeadlineExceeded)
		if lastTimedOut {
			h.recordFailure(err)
			continue
		}
		// Non-timeout transport error: also retryable, but do not loop forever
		// past the configured budget.
		h.recordFailure(err)
	}

	if lastTimedOut || ctx.Err() != nil {
		return nil, common.NewGatewayError(common.ErrToolExecutionTimeout, fmt.Sprintf("call to %q timed out after %d attempts", qualifiedName, maxRetries+1), lastErr)
	}
	return nil, common.NewGatewayError(common.ErrServerUnavailable, fmt.Sprintf("call to %q failed after %d attempts", qualifiedName, maxRetries+1), lastErr)
}

// Shutdown closes every handle's session, releasing subprocesses. Each
// close is attempted independently so one stuck server cannot block the
// others from shutting down.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.RLock()
	handles := make([]*handle, 0, len(p.handles))
	for _, h := range p.handles {
		handles = append(handles, h)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *handle) {
			defer wg.Done()
			h.close()
		}(h)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn().Msg("shutdown deadline exceeded, some downstream servers may not have closed cleanly")
	}
}
