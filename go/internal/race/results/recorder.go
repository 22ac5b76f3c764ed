// Package results hands finished races to a publisher off the session goroutine.
package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/race/events"
)

type Config struct {
	QueueSize      int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Recorder queues results and publishes them from its own goroutine. Record
// never blocks; results that do not fit in the queue are dropped and logged.
type Recorder struct {
	publisher Publisher
	config    Config
	clock     clockwork.Clock
	queue     chan events.RaceResult

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRecorder(publisher Publisher, cfg Config, clock clockwork.Clock) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Recorder{
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		queue:     make(chan events.RaceResult, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}
}

// Record enqueues result for publishing.
func (r *Recorder) Record(result events.RaceResult) {
	select {
	case r.queue <- result:
	default:
		log.Warn().
			Str("result_id", result.ID).
			Str("room_code", result.RoomCode).
			Msg("result queue full, dropping race result")
	}
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("result recorder already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx)

	log.Info().Int("queue_size", r.config.QueueSize).Msg("result recorder started")
	return nil
}

// Stop publishes whatever is still queued, then waits for the worker to exit.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("result recorder not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	log.Info().Msg("result recorder stopped")
	return nil
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			r.flush()
			return
		case result := <-r.queue:
			r.publish(ctx, result)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case result := <-r.queue:
			r.publishOnce(context.Background(), result)
		default:
			return
		}
	}
}

func (r *Recorder) publish(ctx context.Context, result events.RaceResult) {
	if err := r.publishWithRetry(ctx, result); err != nil {
		log.Error().
			Err(err).
			Str("result_id", result.ID).
			Str("room_code", result.RoomCode).
			Msg("failed to publish race result")
	}
}

func (r *Recorder) publishOnce(ctx context.Context, result events.RaceResult) error {
	if r.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.PublishTimeout)
		defer cancel()
	}
	return r.publisher.Publish(ctx, result)
}

func (r *Recorder) publishWithRetry(ctx context.Context, result events.RaceResult) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publishOnce(ctx, result); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("result_id", result.ID).
				Int("attempt", attempt+1).
				Msg("failed to publish race result, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}
