package configuration

import (
	"time"
)

// Model service defaults.
const (
	ProviderGoogle         = "google"
	DefaultModelName       = "gemini-2.5-flash"
	DefaultGoogleEndpoint  = "https://generativelanguage.googleapis.com/v1beta"
	DefaultRequestTimeout  = 120 * time.Second
	DefaultTopP            = 0.95
	DefaultTopK            = 32
	DefaultHTTPIdleTimeout = 90 * time.Second
)

// Retry defaults: three attempts one second apart.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 1 * time.Second
)

// Circuit breaker defaults. The breaker is off unless enabled.
const (
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerSuccessThreshold = 1
	DefaultBreakerOpenTimeout      = 30 * time.Second
	DefaultBreakerHalfOpenProbes   = 1
)

// Rate limiting defaults.
const (
	DefaultRequestsPerSecond = 4
	DefaultBurst             = 1
	DefaultGlobalKey         = "gemini"
)

// Stage defaults.
const (
	DefaultDPI                   = 300
	DefaultExtractionWorkers     = 4
	DefaultRendererPath          = "pdftoppm"
	DefaultExtractionTemperature = 0.2
	DefaultExtractionMaxTokens   = 4096

	DefaultQuestionPaperWorkers     = 2
	DefaultQuestionPaperTemperature = 0.1
	DefaultQuestionPaperMaxTokens   = 6144

	DefaultFallbackMaxMarks     = 10
	DefaultAlignmentTemperature = 0.1
	DefaultAlignmentMaxTokens   = 8192

	DefaultScoringPolicy      = "rubric"
	DefaultScoringWorkers     = 5
	DefaultGraceFloor         = 0.7
	DefaultScoringTemperature = 0.2
	DefaultScoringMaxTokens   = 8192

	DefaultRunTimeout = 10 * time.Minute
)

// Temporal defaults.
const (
	DefaultTemporalHostPort  = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "grading"
)

// DefaultConfig returns a configuration that needs only an API key.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:       ProviderGoogle,
			Name:           DefaultModelName,
			Endpoint:       DefaultGoogleEndpoint,
			RequestTimeout: DefaultRequestTimeout,
			TopP:           DefaultTopP,
			TopK:           DefaultTopK,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			Backoff:     DefaultBackoff,
		},
		Breaker: BreakerConfig{
			FailureThreshold: DefaultBreakerFailureThreshold,
			SuccessThreshold: DefaultBreakerSuccessThreshold,
			OpenTimeout:      DefaultBreakerOpenTimeout,
			HalfOpenProbes:   DefaultBreakerHalfOpenProbes,
		},
		RateLimit: RateLimitConfig{
			Local: LocalRateLimitConfig{
				RequestsPerSecond: DefaultRequestsPerSecond,
				Burst:             DefaultBurst,
			},
			Global: GlobalRateLimitConfig{
				RequestsPerSecond: DefaultRequestsPerSecond,
				Key:               DefaultGlobalKey,
			},
		},
		Extraction: ExtractionConfig{
			DPI:             DefaultDPI,
			Workers:         DefaultExtractionWorkers,
			RendererPath:    DefaultRendererPath,
			Temperature:     DefaultExtractionTemperature,
			MaxOutputTokens: DefaultExtractionMaxTokens,
		},
		QuestionPaper: QuestionPaperConfig{
			Workers:         DefaultQuestionPaperWorkers,
			Temperature:     DefaultQuestionPaperTemperature,
			MaxOutputTokens: DefaultQuestionPaperMaxTokens,
		},
		Alignment: AlignmentConfig{
			DefaultMaxMarks: DefaultFallbackMaxMarks,
			Temperature:     DefaultAlignmentTemperature,
			MaxOutputTokens: DefaultAlignmentMaxTokens,
		},
		Scoring: ScoringConfig{
			Policy:          DefaultScoringPolicy,
			Workers:         DefaultScoringWorkers,
			GraceFloor:      DefaultGraceFloor,
			Temperature:     DefaultScoringTemperature,
			MaxOutputTokens: DefaultScoringMaxTokens,
		},
		Pipeline: PipelineConfig{
			RunTimeout: DefaultRunTimeout,
		},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultTemporalNamespace,
			TaskQueue: DefaultTaskQueue,
		},
	}
}
