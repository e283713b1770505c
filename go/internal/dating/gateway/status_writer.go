package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

const statusWriteTimeout = 5 * time.Second

// RoundStatusStore persists round lifecycle changes.
type RoundStatusStore interface {
	UpdateRoundStatus(ctx context.Context, change models.RoundStatusChange) error
}

// StatusRecorder accepts round status changes without blocking.
type StatusRecorder interface {
	Enqueue(change models.RoundStatusChange)
}

// StatusWriter persists round status changes off the engine's goroutine.
// Changes of one round always land on the same worker, so they are written
// in the order they happened.
type StatusWriter struct {
	store  RoundStatusStore
	shards []chan models.RoundStatusChange

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewStatusWriter creates a writer with the given number of workers, each
// with a queue of buffer pending changes.
func NewStatusWriter(store RoundStatusStore, workers, buffer int) *StatusWriter {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	w := &StatusWriter{store: store, shards: make([]chan models.RoundStatusChange, workers)}
	for i := range w.shards {
		w.shards[i] = make(chan models.RoundStatusChange, buffer)
	}
	return w
}

// Start launches the workers. They exit once Stop has drained their queues.
func (w *StatusWriter) Start(ctx context.Context) {
	for i, ch := range w.shards {
		w.wg.Add(1)
		go w.worker(ctx, i, ch)
	}
	log.Info().Int("workers", len(w.shards)).Msg("round status writer started")
}

// Enqueue schedules a change for persistence. Changes arriving after Stop
// or into a full queue are logged and dropped.
func (w *StatusWriter) Enqueue(change models.RoundStatusChange) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		log.Warn().
			Str("round_id", change.RoundID.String()).
			Str("status", string(change.Status)).
			Msg("status writer stopped, dropping round status change")
		return
	}
	shard := w.shards[int(change.RoundID[0])%len(w.shards)]
	select {
	case shard <- change:
	default:
		log.Error().
			Str("round_id", change.RoundID.String()).
			Str("status", string(change.Status)).
			Msg("status writer queue full, dropping round status change")
	}
}

// Stop closes the queues and waits for pending changes to be written.
func (w *StatusWriter) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for _, ch := range w.shards {
		close(ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
	log.Info().Msg("round status writer stopped")
}

func (w *StatusWriter) worker(ctx context.Context, id int, ch <-chan models.RoundStatusChange) {
	defer w.wg.Done()
	for change := range ch {
		// Detached from ctx so queued changes still land during shutdown.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
		err := w.store.UpdateRoundStatus(writeCtx, change)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Int("worker_id", id).
				Str("round_id", change.RoundID.String()).
				Str("status", string(change.Status)).
				Msg("failed to persist round status")
			continue
		}
		log.Debug().
			Int("worker_id", id).
			Str("round_id", change.RoundID.String()).
			Str("status", string(change.Status)).
			Msg("round status persisted")
	}
}
