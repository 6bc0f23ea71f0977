package usage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Drop reasons reported to the Observer.
const (
	DropBufferFull = "buffer_full"
	DropPushFailed = "push_failed"
	DropEncode     = "encode_failed"
	DropClosed     = "closed"
)

// Observer receives pipeline events for metrics.
type Observer interface {
	RecordDropped(reason string)
	RecordAggregated(outcome string)
	RecordRetry()
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	Buffer      int           // Pending events held in memory (default: 1024)
	Workers     int           // Goroutines pushing to the queue (default: 2)
	PushTimeout time.Duration // Bound on a single queue push (default: 1s)
}

// Emitter hands events from request goroutines to a Queue without blocking them.
// When the buffer is full the event is dropped.
type Emitter struct {
	queue    Queue
	cfg      EmitterConfig
	log      zerolog.Logger
	observer Observer

	events chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter starts the sender goroutines. observer may be nil.
func NewEmitter(queue Queue, cfg EmitterConfig, log zerolog.Logger, observer Observer) *Emitter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = time.Second
	}

	e := &Emitter{
		queue:    queue,
		cfg:      cfg,
		log:      log.With().Str("component", "usage-emitter").Logger(),
		observer: observer,
		events:   make(chan Event, cfg.Buffer),
	}

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.send()
	}
	return e
}

// Emit enqueues ev and returns immediately.
func (e *Emitter) Emit(ev Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(DropClosed)
		return ErrEmitterClosed
	}

	select {
	case e.events <- ev:
		return nil
	default:
		e.drop(DropBufferFull)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until buffered events are pushed
// or ctx ends.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("usage emitter drained")
		return nil
	case <-ctx.Done():
		e.log.Warn().Int("pending", len(e.events)).Msg("usage emitter drain timed out")
		return ctx.Err()
	}
}

func (e *Emitter) send() {
	defer e.wg.Done()

	for ev := range e.events {
		payload, err := ev.Encode()
		if err != nil {
			e.log.Warn().Err(err).Str("key_id", ev.KeyID).Msg("dropping unencodable usage event")
			e.drop(DropEncode)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PushTimeout)
		err = e.queue.Push(ctx, payload)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("key_id", ev.KeyID).Str("outcome", string(ev.Outcome)).Msg("failed to enqueue usage event")
			e.drop(DropPushFailed)
		}
	}
}

func (e *Emitter) drop(reason string) {
	if e.observer != nil {
		e.observer.RecordDropped(reason)
	}
}
