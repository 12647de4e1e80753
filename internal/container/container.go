package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/claim-intake/internal/application/dispatcher"
	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/application/service"
	"github.com/garyjia/claim-intake/internal/config"
	"github.com/garyjia/claim-intake/internal/infrastructure/external/openai"
	"github.com/garyjia/claim-intake/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-intake/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-intake/internal/infrastructure/worker"
	"github.com/garyjia/claim-intake/internal/pipeline"
	"go.uber.org/zap"
)

// Container owns every component of the pipeline. Components are built in
// dependency order by Start and torn down in reverse by Close.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db       *sqlite.DB
	outcomes *repository.OutcomeRepository
	archive  port.FileStorage
	openai   *openai.Client

	// Pipeline
	stages       *StageBundle
	integrations *IntegrationBundle
	dispatcher   dispatcher.Dispatcher
	orchestrator *pipeline.Orchestrator

	// Application
	intake  *worker.IntakeWorker
	workers *worker.Manager
	claims  service.ClaimService

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// New creates a container from a validated configuration. Call Start to
// build the components.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start builds the components in order:
// 1. Outcome database and archive
// 2. Model client and recognizers
// 3. Decision stages
// 4. Integrations, dispatcher and orchestrator
// 5. Intake worker and claim service
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initStorage(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize storage: %w", err))
	}
	c.logger.Info("Storage initialized", zap.String("database", c.config.Database.Path))

	if err := c.initStages(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize pipeline stages: %w", err))
	}
	c.logger.Info("Pipeline stages initialized", zap.String("ocr_engine", c.config.OCR.Engine))

	c.initOrchestrator()
	c.logger.Info("Orchestrator initialized",
		zap.Bool("stripe", c.config.Stripe.Enabled),
		zap.Bool("lark", c.config.Lark.Enabled))

	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// abort releases whatever Start managed to build
func (c *Container) abort(err error) error {
	c.cancel()
	if c.workers != nil {
		_ = c.workers.StopAll()
	}
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	c.workers, c.dispatcher = nil, nil
	return err
}

func (c *Container) initStorage() error {
	db, err := ProvideDatabase(c.ctx, c.config.Database, c.logger.Named("database"))
	if err != nil {
		return err
	}
	c.db = db

	c.outcomes, err = ProvideOutcomeRepository(db, c.logger.Named("outcomes"))
	if err != nil {
		return err
	}
	c.archive = ProvideArchive(c.config.Storage, c.logger.Named("archive"))
	return nil
}

func (c *Container) initStages() error {
	client, err := ProvideOpenAIClient(c.config.OpenAI, c.logger.Named("openai"))
	if err != nil {
		return err
	}
	c.openai = client

	recognizer, err := ProvideRecognizer(c.config.OCR, client, c.logger.Named("ocr"))
	if err != nil {
		return err
	}

	scorer, err := ProvideScorer(c.config.Anomaly, c.logger.Named("anomaly"))
	if err != nil {
		return err
	}

	var classifier port.DocumentClassifier
	if c.config.Pipeline.ClassifyOther {
		classifier = openai.NewDocumentClassifier(client, c.logger.Named("openai"))
	}

	c.stages, err = ProvideStages(
		c.config.Pipeline,
		recognizer,
		openai.NewStructuredExtractor(client, c.logger.Named("openai")),
		classifier,
		scorer,
		c.logger,
	)
	return err
}

func (c *Container) initOrchestrator() {
	c.integrations = ProvideIntegrations(c.config, c.logger)
	c.dispatcher = ProvideDispatcher(c.logger)
	c.orchestrator = ProvideOrchestrator(&OrchestratorDeps{
		Stages:       c.stages,
		Integrations: c.integrations,
		Dispatcher:   c.dispatcher,
		Recorder:     c.outcomes,
		Archive:      c.archive,
		Pipeline:     c.config.Pipeline,
		Logger:       c.logger,
	})
}

func (c *Container) initWorkers() error {
	c.intake = worker.NewIntakeWorker(c.orchestrator, worker.IntakeConfig{
		Concurrency: c.config.Worker.Concurrency,
		QueueSize:   c.config.Worker.QueueSize,
	}, c.logger.Named("intake"))

	c.workers = worker.NewManager(c.logger.Named("workers"))
	c.workers.Register(c.intake)
	if err := c.workers.StartAll(c.ctx); err != nil {
		return err
	}

	c.claims = service.NewClaimService(c.orchestrator, c.intake, c.outcomes, c.logger.Named("claims"))
	return nil
}

// Close stops the components in reverse order. Queued documents are
// drained before the dispatcher and database close.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports the state of the database and the intake worker
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.intake == nil {
		set("intake", false, "not initialized")
	} else {
		stats := c.intake.Stats()
		set("intake", stats.Running, fmt.Sprintf("queued: %d, processed: %d", stats.Queued, stats.Processed))
	}

	return status
}

// Claims returns the claim service
func (c *Container) Claims() service.ClaimService {
	return c.claims
}

// Orchestrator returns the pipeline orchestrator
func (c *Container) Orchestrator() *pipeline.Orchestrator {
	return c.orchestrator
}

// Outcomes returns the outcome repository
func (c *Container) Outcomes() *repository.OutcomeRepository {
	return c.outcomes
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}
