package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration. It is built once at startup
// and passed by value or pointer to constructors; nothing mutates it later.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig holds outcome audit log configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds document archive configuration
type StorageConfig struct {
	DocumentDir string `mapstructure:"document_dir"`
	ReportDir   string `mapstructure:"report_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	VisionModel       string        `mapstructure:"vision_model"`
	Temperature       float32       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// OCRConfig selects and tunes the text recognition engine
type OCRConfig struct {
	// Engine is "tesseract" or "openai"; PDFs always try the embedded text layer first.
	Engine    string   `mapstructure:"engine"`
	Languages []string `mapstructure:"languages"`
	RenderDPI float64  `mapstructure:"render_dpi"`
}

// StripeConfig holds settlement configuration
type StripeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SecretKey string `mapstructure:"secret_key"`
	Currency  string `mapstructure:"currency"`
}

// LarkConfig holds reviewer notification configuration
type LarkConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	AppID        string        `mapstructure:"app_id"`
	AppSecret    string        `mapstructure:"app_secret"`
	ReviewChatID string        `mapstructure:"review_chat_id"`
	APITimeout   time.Duration `mapstructure:"api_timeout"`
}

// PipelineConfig holds the decision thresholds and stage limits
type PipelineConfig struct {
	FraudThreshold           float64       `mapstructure:"fraud_threshold"`
	LowRiskMargin            float64       `mapstructure:"low_risk_margin"`
	AutoApproveThreshold     float64       `mapstructure:"auto_approve_threshold"`
	ManualReviewThreshold    float64       `mapstructure:"manual_review_threshold"`
	MaxStructuringRetries    int           `mapstructure:"max_structuring_retries"`
	MinExtractionConfidence  float64       `mapstructure:"min_extraction_confidence"`
	MinStructuringConfidence float64       `mapstructure:"min_structuring_confidence"`
	MaxClaimAmount           float64       `mapstructure:"max_claim_amount"`
	ReviewFlagRatio          float64       `mapstructure:"review_flag_ratio"`
	IncidentRetentionYears   int           `mapstructure:"incident_retention_years"`
	ExtractionTimeout        time.Duration `mapstructure:"extraction_timeout"`
	StructuringTimeout       time.Duration `mapstructure:"structuring_timeout"`
	SettlementTimeout        time.Duration `mapstructure:"settlement_timeout"`
	// ClassifyOther asks the model to categorize documents submitted as other.
	ClassifyOther bool `mapstructure:"classify_other"`
}

// AnomalyConfig points at the scoring model parameters
type AnomalyConfig struct {
	// ModelPath is a JSON parameter file; empty uses the built-in model.
	ModelPath string `mapstructure:"model_path"`
}

// WorkerConfig holds batch processing configuration
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// QueueSize bounds the documents waiting for the async intake worker.
	QueueSize int `mapstructure:"queue_size"`
}

const maxStructuringRetriesLimit = 10

// Load reads configuration from an optional .env file, a YAML file and the
// environment, then validates it. An empty path loads defaults and env only.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_size", int64(20<<20))

	// Database defaults
	v.SetDefault("database.path", "data/claims.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.document_dir", "data/documents")
	v.SetDefault("storage.report_dir", "data/reports")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.vision_model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.max_tokens", 1500)
	v.SetDefault("openai.requests_per_minute", 60)
	v.SetDefault("openai.timeout", 60*time.Second)

	// OCR defaults
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.render_dpi", 200.0)

	// Stripe defaults
	v.SetDefault("stripe.enabled", false)
	v.SetDefault("stripe.currency", "usd")

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// Pipeline defaults
	v.SetDefault("pipeline.fraud_threshold", 0.7)
	v.SetDefault("pipeline.low_risk_margin", 0.3)
	v.SetDefault("pipeline.auto_approve_threshold", 1000.0)
	v.SetDefault("pipeline.manual_review_threshold", 50000.0)
	v.SetDefault("pipeline.max_structuring_retries", 2)
	v.SetDefault("pipeline.min_extraction_confidence", 0.6)
	v.SetDefault("pipeline.min_structuring_confidence", 0.5)
	v.SetDefault("pipeline.max_claim_amount", 100000.0)
	v.SetDefault("pipeline.review_flag_ratio", 0.9)
	v.SetDefault("pipeline.incident_retention_years", 5)
	v.SetDefault("pipeline.extraction_timeout", 60*time.Second)
	v.SetDefault("pipeline.structuring_timeout", 90*time.Second)
	v.SetDefault("pipeline.settlement_timeout", 30*time.Second)
	v.SetDefault("pipeline.classify_other", true)

	// Worker defaults
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 100)
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"openai.api_key":      "OPENAI_API_KEY",
		"openai.base_url":     "OPENAI_BASE_URL",
		"stripe.secret_key":   "STRIPE_SECRET_KEY",
		"lark.app_id":         "LARK_APP_ID",
		"lark.app_secret":     "LARK_APP_SECRET",
		"lark.review_chat_id": "LARK_REVIEW_CHAT_ID",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate checks types, ranges and ordering invariants. Invalid values are
// reported as *entity.ConfigurationError and never clamped.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return entity.NewConfigurationError("server.port", "must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadSize <= 0 {
		return entity.NewConfigurationError("server.max_upload_size", "must be positive, got %d", c.Server.MaxUploadSize)
	}
	if c.Worker.Concurrency < 1 {
		return entity.NewConfigurationError("worker.concurrency", "must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize < 1 {
		return entity.NewConfigurationError("worker.queue_size", "must be at least 1, got %d", c.Worker.QueueSize)
	}

	switch c.OCR.Engine {
	case "tesseract":
	case "openai":
		if c.OpenAI.APIKey == "" {
			return entity.NewConfigurationError("openai.api_key", "is required when ocr.engine is openai")
		}
	default:
		return entity.NewConfigurationError("ocr.engine", "must be tesseract or openai, got %q", c.OCR.Engine)
	}
	if c.OCR.RenderDPI <= 0 {
		return entity.NewConfigurationError("ocr.render_dpi", "must be positive, got %.1f", c.OCR.RenderDPI)
	}

	if c.OpenAI.RequestsPerMinute < 1 {
		return entity.NewConfigurationError("openai.requests_per_minute", "must be at least 1, got %d", c.OpenAI.RequestsPerMinute)
	}

	if c.Stripe.Enabled {
		if c.Stripe.SecretKey == "" {
			return entity.NewConfigurationError("stripe.secret_key", "is required when stripe is enabled")
		}
		if len(c.Stripe.Currency) != 3 {
			return entity.NewConfigurationError("stripe.currency", "must be an ISO 4217 code, got %q", c.Stripe.Currency)
		}
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return entity.NewConfigurationError("lark.app_id", "is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return entity.NewConfigurationError("lark.app_secret", "is required when lark is enabled")
		}
		if c.Lark.ReviewChatID == "" {
			return entity.NewConfigurationError("lark.review_chat_id", "is required when lark is enabled")
		}
	}

	return nil
}

// Validate checks the decision thresholds and stage limits
func (p *PipelineConfig) Validate() error {
	unit := []struct {
		option string
		value  float64
	}{
		{"pipeline.fraud_threshold", p.FraudThreshold},
		{"pipeline.low_risk_margin", p.LowRiskMargin},
		{"pipeline.min_extraction_confidence", p.MinExtractionConfidence},
		{"pipeline.min_structuring_confidence", p.MinStructuringConfidence},
		{"pipeline.review_flag_ratio", p.ReviewFlagRatio},
	}
	for _, u := range unit {
		if math.IsNaN(u.value) || u.value < 0 || u.value > 1 {
			return entity.NewConfigurationError(u.option, "must be between 0.0 and 1.0, got %.2f", u.value)
		}
	}

	if p.FraudThreshold == 0 {
		return entity.NewConfigurationError("pipeline.fraud_threshold", "must be greater than 0")
	}
	if p.LowRiskMargin > p.FraudThreshold {
		return entity.NewConfigurationError("pipeline.low_risk_margin",
			"must not exceed fraud_threshold (low_risk_margin: %.2f, fraud_threshold: %.2f)", p.LowRiskMargin, p.FraudThreshold)
	}

	amounts := []struct {
		option string
		value  float64
	}{
		{"pipeline.auto_approve_threshold", p.AutoApproveThreshold},
		{"pipeline.manual_review_threshold", p.ManualReviewThreshold},
		{"pipeline.max_claim_amount", p.MaxClaimAmount},
	}
	for _, a := range amounts {
		if math.IsNaN(a.value) || math.IsInf(a.value, 0) || a.value < 0 {
			return entity.NewConfigurationError(a.option, "must be a non-negative amount, got %v", a.value)
		}
	}

	if p.AutoApproveThreshold > p.ManualReviewThreshold {
		return entity.NewConfigurationError("pipeline.auto_approve_threshold",
			"must not exceed manual_review_threshold (auto: %.2f, manual: %.2f)", p.AutoApproveThreshold, p.ManualReviewThreshold)
	}
	if p.ManualReviewThreshold > p.MaxClaimAmount {
		return entity.NewConfigurationError("pipeline.manual_review_threshold",
			"must not exceed max_claim_amount (manual: %.2f, max: %.2f)", p.ManualReviewThreshold, p.MaxClaimAmount)
	}

	if p.MaxStructuringRetries < 0 || p.MaxStructuringRetries > maxStructuringRetriesLimit {
		return entity.NewConfigurationError("pipeline.max_structuring_retries",
			"must be in 0..%d, got %d", maxStructuringRetriesLimit, p.MaxStructuringRetries)
	}
	if p.IncidentRetentionYears < 1 {
		return entity.NewConfigurationError("pipeline.incident_retention_years", "must be at least 1, got %d", p.IncidentRetentionYears)
	}

	timeouts := []struct {
		option string
		value  time.Duration
	}{
		{"pipeline.extraction_timeout", p.ExtractionTimeout},
		{"pipeline.structuring_timeout", p.StructuringTimeout},
		{"pipeline.settlement_timeout", p.SettlementTimeout},
	}
	for _, to := range timeouts {
		if to.value <= 0 {
			return entity.NewConfigurationError(to.option, "must be a positive duration, got %s", to.value)
		}
	}

	return nil
}

