// Package container provides dependency construction and lifecycle
// management for the claim intake pipeline.
package container

import (
	"context"
	"fmt"

	"github.com/garyjia/claim-intake/internal/anomaly"
	"github.com/garyjia/claim-intake/internal/application/dispatcher"
	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/config"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/extraction"
	"github.com/garyjia/claim-intake/internal/infrastructure/external/lark"
	"github.com/garyjia/claim-intake/internal/infrastructure/external/openai"
	"github.com/garyjia/claim-intake/internal/infrastructure/external/stripe"
	"github.com/garyjia/claim-intake/internal/infrastructure/ocr"
	"github.com/garyjia/claim-intake/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-intake/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-intake/internal/infrastructure/storage"
	"github.com/garyjia/claim-intake/internal/pipeline"
	"github.com/garyjia/claim-intake/internal/routing"
	"github.com/garyjia/claim-intake/internal/rules"
	"github.com/garyjia/claim-intake/internal/structuring"
	"github.com/garyjia/claim-intake/internal/validation"
	"github.com/garyjia/claim-intake/pkg/database"
	"go.uber.org/zap"
)

// StageBundle holds the four decision stages
type StageBundle struct {
	Extractor  *extraction.Adapter
	Structurer *structuring.Adapter
	Validator  *validation.Coordinator
	Router     *routing.Engine
}

// IntegrationBundle holds the optional outbound integrations. Nil fields
// are disabled.
type IntegrationBundle struct {
	Gateway  port.PaymentGateway
	Notifier port.ReviewNotifier
}

// ProvideDatabase opens the outcome audit log and applies migrations
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlite.DB, error) {
	if cfg.Path == "" {
		return nil, entity.NewConfigurationError("database.path", "is required")
	}
	return sqlite.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
}

// ProvideOutcomeRepository creates the outcome repository
func ProvideOutcomeRepository(db *sqlite.DB, logger *zap.Logger) (*repository.OutcomeRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return repository.NewOutcomeRepository(db, logger), nil
}

// ProvideArchive creates the document archive
func ProvideArchive(cfg config.StorageConfig, logger *zap.Logger) port.FileStorage {
	return storage.NewLocalFileStorage(cfg.DocumentDir, logger)
}

// ProvideOpenAIClient creates the shared model client. Structured extraction
// always needs it, so a missing key is a configuration error.
func ProvideOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, entity.NewConfigurationError("openai.api_key", "is required for structured extraction")
	}
	client, err := openai.NewClient(openai.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		VisionModel:       cfg.VisionModel,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return client, nil
}

// ProvideRecognizer builds the media-type router: PDFs go through MuPDF with
// the image engine as fallback, images through the configured engine and
// text/* directly.
func ProvideRecognizer(cfg config.OCRConfig, client *openai.Client, logger *zap.Logger) (port.TextRecognizer, error) {
	var image port.TextRecognizer
	switch cfg.Engine {
	case "tesseract":
		image = ocr.NewTesseractRecognizer(cfg.Languages, logger)
	case "openai":
		if client == nil {
			return nil, entity.NewConfigurationError("ocr.engine", "openai engine needs an openai client")
		}
		image = openai.NewVisionRecognizer(client, logger)
	default:
		return nil, entity.NewConfigurationError("ocr.engine", "must be tesseract or openai, got %q", cfg.Engine)
	}

	pdf := ocr.NewFitzRecognizer(image, ocr.FitzOptions{RenderDPI: cfg.RenderDPI}, logger)
	return ocr.NewRouter(pdf, image, ocr.NewPlainTextRecognizer(), logger), nil
}

// ProvideScorer loads the anomaly model, falling back to the built-in one
func ProvideScorer(cfg config.AnomalyConfig, logger *zap.Logger) (*anomaly.Scorer, error) {
	var (
		model *anomaly.Model
		err   error
	)
	if cfg.ModelPath != "" {
		model, err = anomaly.LoadModel(cfg.ModelPath)
	} else {
		model, err = anomaly.DefaultModel()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load anomaly model: %w", err)
	}
	return anomaly.NewScorer(model, logger)
}

// ProvideStages builds the extraction, structuring, validation and routing
// stages from the pipeline configuration
func ProvideStages(
	cfg config.PipelineConfig,
	recognizer port.TextRecognizer,
	extractor port.StructuredExtractor,
	classifier port.DocumentClassifier,
	scorer port.RiskScorer,
	logger *zap.Logger,
) (*StageBundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	textAdapter := extraction.NewAdapter(recognizer, extraction.Options{
		Timeout:       cfg.ExtractionTimeout,
		MinConfidence: cfg.MinExtractionConfidence,
	}, logger.Named("extraction"))

	structurer, err := structuring.NewAdapter(extractor, structuring.Options{
		Policy:        structuring.DefaultRetryPolicy(cfg.MaxStructuringRetries),
		MinConfidence: cfg.MinStructuringConfidence,
		Timeout:       cfg.StructuringTimeout,
		Classifier:    classifier,
	}, logger.Named("structuring"))
	if err != nil {
		return nil, err
	}

	ruleEngine, err := rules.NewEngine(rules.Baseline(rules.Options{
		MaxClaimAmount:         cfg.MaxClaimAmount,
		ManualReviewThreshold:  cfg.ManualReviewThreshold,
		ReviewFlagRatio:        cfg.ReviewFlagRatio,
		IncidentRetentionYears: cfg.IncidentRetentionYears,
	}), logger.Named("rules"))
	if err != nil {
		return nil, fmt.Errorf("failed to build rule set: %w", err)
	}

	validator, err := validation.NewCoordinator(ruleEngine, scorer, cfg.FraudThreshold, logger.Named("validation"))
	if err != nil {
		return nil, err
	}

	router, err := routing.NewEngine(routing.Options{
		FraudThreshold:        cfg.FraudThreshold,
		LowRiskMargin:         cfg.LowRiskMargin,
		AutoApproveThreshold:  cfg.AutoApproveThreshold,
		ManualReviewThreshold: cfg.ManualReviewThreshold,
	}, logger.Named("routing"))
	if err != nil {
		return nil, err
	}

	return &StageBundle{
		Extractor:  textAdapter,
		Structurer: structurer,
		Validator:  validator,
		Router:     router,
	}, nil
}

// ProvideIntegrations creates the payment gateway and reviewer notifier.
// Without Stripe credentials approved claims settle through the dry-run
// gateway.
func ProvideIntegrations(cfg *config.Config, logger *zap.Logger) *IntegrationBundle {
	bundle := &IntegrationBundle{}

	if cfg.Stripe.Enabled {
		bundle.Gateway = stripe.NewGateway(stripe.Config{
			SecretKey: cfg.Stripe.SecretKey,
			Currency:  cfg.Stripe.Currency,
		}, logger.Named("stripe"))
	} else {
		bundle.Gateway = stripe.NewDryRunGateway(logger.Named("stripe"))
	}

	if cfg.Lark.Enabled {
		client := lark.NewClient(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			Timeout:   cfg.Lark.APITimeout,
		}, logger.Named("lark"))
		bundle.Notifier = lark.NewReviewNotifier(client, cfg.Lark.ReviewChatID, logger.Named("lark"))
	}

	return bundle
}

// ProvideDispatcher creates the event dispatcher with the audit log handler
// subscribed to every event
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(logger.Named("dispatcher"))
	d.SubscribeAll("audit-log", dispatcher.LogHandler(logger.Named("audit")))
	return d
}

// OrchestratorDeps groups everything the orchestrator is built from
type OrchestratorDeps struct {
	Stages       *StageBundle
	Integrations *IntegrationBundle
	Dispatcher   dispatcher.Dispatcher
	Recorder     port.OutcomeRepository
	Archive      port.FileStorage
	Pipeline     config.PipelineConfig
	Logger       *zap.Logger
}

// ProvideOrchestrator wires the stages and side effects into one pipeline
func ProvideOrchestrator(deps *OrchestratorDeps) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithSettlementTimeout(deps.Pipeline.SettlementTimeout),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, pipeline.WithDispatcher(deps.Dispatcher))
	}
	if deps.Recorder != nil {
		opts = append(opts, pipeline.WithRecorder(deps.Recorder))
	}
	if deps.Archive != nil {
		opts = append(opts, pipeline.WithArchive(deps.Archive))
	}
	if deps.Integrations.Notifier != nil {
		opts = append(opts, pipeline.WithReviewNotifier(deps.Integrations.Notifier))
	}

	return pipeline.New(
		deps.Stages.Extractor,
		deps.Stages.Structurer,
		deps.Stages.Validator,
		deps.Stages.Router,
		deps.Integrations.Gateway,
		deps.Logger.Named("pipeline"),
		opts...,
	)
}
