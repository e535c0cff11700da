package configuration

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load. The API key falls back from
// GOOGLE_API_KEY to GEMINI_API_KEY.
const (
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvModel        = "GRADER_MODEL"
	EnvRedisAddr    = "GRADER_REDIS_ADDR"
	EnvTemporalHost = "GRADER_TEMPORAL_HOST"
	EnvStorePath    = "GRADER_STORE_PATH"
)

// Load builds the configuration from defaults, the optional YAML file at path,
// and environment overrides, then validates it. A missing file is not an
// error; an empty path skips the file. A missing API key is left for the
// gateway and orchestrator to report.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
		}
	}

	applyEnv(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if key := firstNonEmpty(getenv(EnvGoogleAPIKey), getenv(EnvGeminiAPIKey)); key != "" {
		cfg.Model.APIKey = key
	}
	if v := getenv(EnvModel); v != "" {
		cfg.Model.Name = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		cfg.RateLimit.Global.Enabled = true
		cfg.RateLimit.Global.RedisAddr = v
	}
	if v := getenv(EnvTemporalHost); v != "" {
		cfg.Temporal.HostPort = v
	}
	if v := getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
