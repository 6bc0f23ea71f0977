package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/analytics"
)

// Aggregation outcomes reported to the Observer.
const (
	AggregatedOK      = "ok"
	AggregatedInvalid = "invalid"
	AggregatedRequeue = "requeued"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Workers        int           // Concurrent consumers (default: 1)
	PopTimeout     time.Duration // Blocking pop timeout, bounds shutdown latency (default: 1s)
	Backoff        time.Duration // Pause after a queue or store error (default: 500ms)
	RequeueTimeout time.Duration // Bound on putting an event back during shutdown (default: 2s)
}

// Aggregator consumes usage events and folds them into per-key daily counters.
// Delivery is at least once: an event popped just before a crash is lost, and
// one replayed after a partial failure is counted again.
type Aggregator struct {
	queue    Queue
	store    analytics.Store
	cfg      AggregatorConfig
	log      zerolog.Logger
	observer Observer

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewAggregator creates a stopped aggregator. observer may be nil.
func NewAggregator(queue Queue, store analytics.Store, cfg AggregatorConfig, log zerolog.Logger, observer Observer) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.RequeueTimeout <= 0 {
		cfg.RequeueTimeout = 2 * time.Second
	}

	return &Aggregator{
		queue:    queue,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "usage-aggregator").Logger(),
		observer: observer,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the consumers. They run until Stop is called or ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	a.log.Info().Int("workers", a.cfg.Workers).Msg("starting usage aggregator")
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go func(id int) {
			defer a.wg.Done()
			a.work(ctx, a.log.With().Int("worker_id", id).Logger())
		}(i + 1)
	}
	return nil
}

// Stop signals the consumers and waits for their current iteration to finish,
// or for ctx to end.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.stopped.Do(func() { close(a.stopCh) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.log.Info().Msg("usage aggregator stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn().Msg("usage aggregator shutdown timed out")
		return ctx.Err()
	}
}

// Run starts the aggregator and blocks until ctx is cancelled or Stop is called.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.stopCh:
	}
	a.stopped.Do(func() { close(a.stopCh) })
	a.wg.Wait()
	return nil
}

func (a *Aggregator) work(ctx context.Context, log zerolog.Logger) {
	for {
		if a.stopping(ctx) {
			return
		}

		payload, err := a.queue.Pop(ctx, a.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("failed to pop usage event")
			if !a.sleep(ctx, a.cfg.Backoff) {
				return
			}
			continue
		}
		if payload == nil {
			continue
		}

		a.process(ctx, log, payload)
	}
}

// process aggregates one payload. Invalid payloads are dropped; store errors
// are retried until they succeed or the aggregator stops, in which case the
// payload goes back on the queue.
func (a *Aggregator) process(ctx context.Context, log zerolog.Logger, payload []byte) {
	ev, err := Decode(payload)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping invalid usage event")
		a.record(AggregatedInvalid)
		return
	}
	field, _ := ev.Outcome.Field()

	for {
		err := a.store.Increment(ctx, ev.KeyID, ev.OwnerID, ev.Timestamp, field)
		if err == nil {
			a.record(AggregatedOK)
			return
		}
		if errors.Is(err, analytics.ErrInvalidField) {
			log.Warn().Err(err).Str("key_id", ev.KeyID).Msg("dropping usage event")
			a.record(AggregatedInvalid)
			return
		}

		log.Warn().Err(err).Str("key_id", ev.KeyID).Dur("backoff", a.cfg.Backoff).Msg("failed to aggregate usage event, retrying")
		if a.observer != nil {
			a.observer.RecordRetry()
		}
		if !a.sleep(ctx, a.cfg.Backoff) {
			a.requeue(log, ev, payload)
			return
		}
	}
}

func (a *Aggregator) requeue(log zerolog.Logger, ev Event, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequeueTimeout)
	defer cancel()

	if err := a.queue.Requeue(ctx, payload); err != nil {
		log.Error().Err(err).Str("key_id", ev.KeyID).Msg("lost usage event during shutdown")
		return
	}
	a.record(AggregatedRequeue)
}

func (a *Aggregator) record(outcome string) {
	if a.observer != nil {
		a.observer.RecordAggregated(outcome)
	}
}

func (a *Aggregator) stopping(ctx context.Context) bool {
	select {
	case <-a.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if the aggregator was stopped meanwhile.
func (a *Aggregator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-a.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
