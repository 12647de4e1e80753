package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the intake queue cannot take more documents
	ErrQueueFull = errors.New("intake queue is full")

	// ErrNotRunning is returned when submitting to a stopped worker
	ErrNotRunning = errors.New("intake worker is not running")
)

// Processor runs one document through the pipeline
type Processor interface {
	Process(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome
}

// IntakeConfig holds configuration for the intake worker
type IntakeConfig struct {
	Concurrency int
	QueueSize   int
}

// IntakeStats is a snapshot of the worker's counters
type IntakeStats struct {
	Running   bool      `json:"running"`
	Queued    int       `json:"queued"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// IntakeWorker processes documents submitted for asynchronous handling.
// Outcomes are persisted by the processor, not returned.
type IntakeWorker struct {
	processor Processor
	cfg       IntakeConfig
	logger    *zap.Logger

	mu        sync.RWMutex
	queue     chan *entity.ClaimDocument
	running   bool
	wg        sync.WaitGroup
	processed int
	failed    int
	startedAt time.Time
}

// NewIntakeWorker creates an intake worker
func NewIntakeWorker(processor Processor, cfg IntakeConfig, logger *zap.Logger) *IntakeWorker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	return &IntakeWorker{processor: processor, cfg: cfg, logger: logger}
}

// Name returns the worker name for identification
func (w *IntakeWorker) Name() string {
	return "IntakeWorker"
}

// Start launches the consumers. Cancelling ctx abandons queued documents;
// Stop drains them.
func (w *IntakeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("intake worker already running")
	}

	w.queue = make(chan *entity.ClaimDocument, w.cfg.QueueSize)
	w.running = true
	w.startedAt = time.Now().UTC()

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consume(ctx, w.queue)
	}

	w.logger.Info("IntakeWorker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int("queue_size", w.cfg.QueueSize))
	return nil
}

// Stop closes the queue and waits for the consumers to finish
func (w *IntakeWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()

	stats := w.Stats()
	w.logger.Info("IntakeWorker stopped",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed))
	return nil
}

// Submit enqueues a document without blocking
func (w *IntakeWorker) Submit(doc *entity.ClaimDocument) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.running {
		return ErrNotRunning
	}

	select {
	case w.queue <- doc:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the current counters
func (w *IntakeWorker) Stats() IntakeStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := IntakeStats{
		Running:   w.running,
		Processed: w.processed,
		Failed:    w.failed,
		StartedAt: w.startedAt,
	}
	if w.queue != nil {
		stats.Queued = len(w.queue)
	}
	return stats
}

func (w *IntakeWorker) consume(ctx context.Context, queue <-chan *entity.ClaimDocument) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-queue:
			if !ok {
				return
			}
			outcome := w.processor.Process(ctx, doc)

			w.mu.Lock()
			w.processed++
			if outcome.Failed() {
				w.failed++
			}
			w.mu.Unlock()

			w.logger.Debug("Queued document processed",
				zap.String("document_id", doc.ID),
				zap.String("run_id", outcome.RunID),
				zap.String("result", outcome.Summary()))
		}
	}
}
