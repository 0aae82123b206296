package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Sink receives emitted events. The default sink logs one structured line
// per event through zerolog; a file sink is added alongside it, since NewBus
// fans every event out to each Sink it is given.
type Sink interface {
	Emit(Event)
}

// LogSink writes every event as a structured zerolog line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a Sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	data, err := e.MarshalJSON()
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", string(e.Kind)).Msg("failed to marshal trace event")
		return
	}
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	evt := s.logger.Info()
	for k, v := range fields {
		if k == "kind" {
			continue
		}
		evt = evt.Interface(k, v)
	}
	evt.Msg(string(e.Kind))
}

// FileSink appends every event as a JSON line to an append-only store,
// giving the CLI's log-tail command something to read. Which partition the
// lines land in is decided by the append function it is built with.
type FileSink struct {
	append func(line []byte) error
}

// NewFileSink builds a Sink backed by the given append function (typically
// store.FileAppendStore.Append bound to a fixed partition).
func NewFileSink(appendFn func(line []byte) error) *FileSink {
	return &FileSink{append: appendFn}
}

func (s *FileSink) Emit(e Event) {
	data, err := e.MarshalJSON()
	if err != nil {
		return
	}
	_ = s.append(data)
}

// Bus is the bounded, non-blocking event queue every component emits
// through. Overflow drops the oldest queued event and increments Dropped,
// per spec.md §4.6/§5's backpressure policy.
type Bus struct {
	sinks   []Sink
	ch      chan Event
	dropped atomic.Int64
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
	metrics *Metrics
}

// SetMetrics attaches the OTel instrument Emit reports queue drops through.
// Passing nil leaves metrics recording disabled.
func (b *Bus) SetMetrics(m *Metrics) {
	b.metrics = m
}

// NewBus starts a Bus with the given queue capacity, fanning every emitted
// event out to sinks on a single background goroutine.
func NewBus(capacity int, sinks ...Sink) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	b := &Bus{sinks: sinks, ch: make(chan Event, capacity)}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *Bus) run() {
	defer b.wg.Done()
	for e := range b.ch {
		for _, s := range b.sinks {
			s.Emit(e)
		}
	}
}

// Emit enqueues e without blocking. If the queue is full, the oldest queued
// event is dropped to make room, and Dropped is incremented.
func (b *Bus) Emit(e Event) {
	select {
	case b.ch <- e:
		return
	default:
	}
	// Queue full: drop the oldest element, then enqueue e.
	select {
	case <-b.ch:
		b.recordDrop()
	default:
	}
	select {
	case b.ch <- e:
	default:
		b.recordDrop()
	}
}

func (b *Bus) recordDrop() {
	b.dropped.Add(1)
	if b.metrics != nil {
		b.metrics.QueueDrops.Add(context.Background(), 1)
	}
}

// Dropped returns the number of events dropped for backpressure so far.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close drains no further events and waits for the background fan-out
// goroutine to finish processing what is already queued.
func (b *Bus) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
	b.wg.Wait()
}
