// Package configuration holds the settings of the grading pipeline: the model
// gateway, its retry and rate-limit policy, the stage worker pools, and the
// optional Temporal and storage integrations.
package configuration

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the root configuration.
type Config struct {
	Model         ModelConfig         `json:"model"          yaml:"model"`
	Retry         RetryConfig         `json:"retry"          yaml:"retry"`
	RateLimit     RateLimitConfig     `json:"rate_limit"     yaml:"rate_limit"`
	Breaker       BreakerConfig       `json:"breaker"        yaml:"breaker"`
	Extraction    ExtractionConfig    `json:"extraction"     yaml:"extraction"`
	QuestionPaper QuestionPaperConfig `json:"question_paper" yaml:"question_paper"`
	Alignment     AlignmentConfig     `json:"alignment"      yaml:"alignment"`
	Scoring       ScoringConfig       `json:"scoring"        yaml:"scoring"`
	Pipeline      PipelineConfig      `json:"pipeline"       yaml:"pipeline"`
	Temporal      TemporalConfig      `json:"temporal"       yaml:"temporal"`
	Store         StoreConfig         `json:"store"          yaml:"store"`

	// HTTPClient overrides the gateway's HTTP client (tests, proxies).
	HTTPClient *http.Client `json:"-" yaml:"-"`
}

// ModelConfig identifies the generative model service and its credential.
type ModelConfig struct {
	Provider       string            `json:"provider"        yaml:"provider"        validate:"oneof=google"`
	Name           string            `json:"name"            yaml:"name"            validate:"required"`
	Endpoint       string            `json:"endpoint"        yaml:"endpoint"`
	APIKey         string            `json:"-"               yaml:"api_key"` // Sensitive, not serialized to JSON
	RequestTimeout time.Duration     `json:"request_timeout" yaml:"request_timeout" validate:"gte=0"`
	TopP           float64           `json:"top_p"           yaml:"top_p"           validate:"gte=0,lte=1"`
	TopK           int               `json:"top_k"           yaml:"top_k"           validate:"gte=0"`
	Headers        map[string]string `json:"headers"         yaml:"headers"`
}

// HasCredential reports whether an API key is configured.
func (m ModelConfig) HasCredential() bool { return m.APIKey != "" }

// RetryConfig is the gateway retry policy: a fixed backoff between at most
// MaxAttempts attempts, without jitter.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `json:"backoff"      yaml:"backoff"      validate:"gte=0"`
}

// BreakerConfig controls the optional circuit breaker that fails calls fast
// once the model service keeps failing after retries.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled"           yaml:"enabled"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" validate:"gte=1"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `json:"open_timeout"      yaml:"open_timeout"      validate:"gt=0"`
	HalfOpenProbes   int           `json:"half_open_probes"  yaml:"half_open_probes"  validate:"gte=1"`
}

// RateLimitConfig controls the dispatch gate in front of the model service.
type RateLimitConfig struct {
	Local  LocalRateLimitConfig  `json:"local"  yaml:"local"`
	Global GlobalRateLimitConfig `json:"global" yaml:"global"`
}

// LocalRateLimitConfig is the in-process token bucket.
type LocalRateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `json:"burst"               yaml:"burst"               validate:"gte=1"`
}

// GlobalRateLimitConfig is the optional Redis fixed-window limiter shared by
// every process using the same key.
type GlobalRateLimitConfig struct {
	Enabled           bool   `json:"enabled"             yaml:"enabled"`
	RedisAddr         string `json:"redis_addr"          yaml:"redis_addr"          validate:"required_if=Enabled true"`
	RedisPassword     string `json:"-"                   yaml:"redis_password"`
	RedisDB           int    `json:"redis_db"            yaml:"redis_db"            validate:"gte=0"`
	RequestsPerSecond int    `json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Key               string `json:"key"                 yaml:"key"`
}

// ExtractionConfig tunes page rendering and the OCR worker pool.
type ExtractionConfig struct {
	DPI             int     `json:"dpi"               yaml:"dpi"               validate:"gte=72,lte=1200"`
	Workers         int     `json:"workers"           yaml:"workers"           validate:"gte=1"`
	MaxPages        int     `json:"max_pages"         yaml:"max_pages"         validate:"gte=0"`
	RendererPath    string  `json:"renderer_path"     yaml:"renderer_path"`
	Temperature     float64 `json:"temperature"       yaml:"temperature"       validate:"gte=0,lte=2"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens" validate:"gte=0"`
}

// QuestionPaperConfig tunes question paper parsing: one call per page,
// rendered at the extraction DPI.
type QuestionPaperConfig struct {
	Workers         int     `json:"workers"           yaml:"workers"           validate:"gte=1"`
	Temperature     float64 `json:"temperature"       yaml:"temperature"       validate:"gte=0,lte=2"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens" validate:"gte=0"`
}

// AlignmentConfig tunes the single mapping call.
type AlignmentConfig struct {
	DefaultMaxMarks int     `json:"default_max_marks" yaml:"default_max_marks" validate:"gte=0"`
	Temperature     float64 `json:"temperature"       yaml:"temperature"       validate:"gte=0,lte=2"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens" validate:"gte=0"`
}

// ScoringConfig selects the scoring policy and sizes the worker pool.
type ScoringConfig struct {
	Policy          string  `json:"policy"            yaml:"policy"            validate:"oneof=rubric consensus"`
	Workers         int     `json:"workers"           yaml:"workers"           validate:"gte=1"`
	GraceFloor      float64 `json:"grace_floor"       yaml:"grace_floor"       validate:"gte=0,lte=1"`
	Temperature     float64 `json:"temperature"       yaml:"temperature"       validate:"gte=0,lte=2"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens" validate:"gte=0"`
}

// PipelineConfig bounds a whole run.
type PipelineConfig struct {
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout" validate:"gte=0"`
}

// TemporalConfig locates the Temporal frontend used by the worker command.
type TemporalConfig struct {
	HostPort  string `json:"host_port"  yaml:"host_port"`
	Namespace string `json:"namespace"  yaml:"namespace"`
	TaskQueue string `json:"task_queue" yaml:"task_queue" validate:"required"`
}

// StoreConfig locates the run-history database. An empty path disables it.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// CallBudget is the longest a single gateway call can take: every attempt
// running to RequestTimeout plus the backoff between attempts.
func (c *Config) CallBudget() time.Duration {
	attempts := max(c.Retry.MaxAttempts, 1)
	return c.Model.RequestTimeout*time.Duration(attempts) + c.Retry.Backoff*time.Duration(attempts-1)
}
