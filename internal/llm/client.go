// Package llm provides the model gateway: the single choke point through which
// every stage of the grading pipeline reaches the generative model service.
//
// Architecture:
//   - Provider adapter encodes normalized requests for Gemini's generateContent API
//   - Middleware chain, outermost first: call logging, circuit breaker (when
//     enabled), retry, rate gate, HTTP
//   - Rate gate runs per attempt, so retries also respect the dispatch rate
//   - Usage is counted by the Metered wrapper, once per successful call
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-grader/internal/llm/circuitbreaker"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/providers"
	"github.com/ahrav/go-grader/internal/llm/ratelimit"
	"github.com/ahrav/go-grader/internal/llm/retry"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// HTTP connection constants.
const (
	DefaultMaxIdleConns = 16
)

// Completer issues one logical model call. Implementations are safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(context.Context, *transport.Request) (*transport.Response, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return f(ctx, req)
}

// Gateway is the production Completer.
type Gateway struct {
	model   configuration.ModelConfig
	handler transport.Handler
	gate    *ratelimit.Gate
	retry   *retry.Middleware
	breaker *circuitbreaker.Breaker
}

type gatewayOptions struct {
	redis        *redis.Client
	retryOpts    []retry.Option
	gateOpts     []ratelimit.Option
	core         transport.Handler
	requireCreds bool
}

// GatewayOption customizes NewGateway.
type GatewayOption func(*gatewayOptions)

// WithRedisClient supplies the client used by the global rate limiter.
func WithRedisClient(c *redis.Client) GatewayOption {
	return func(o *gatewayOptions) { o.redis = c }
}

// WithRetryOptions forwards options to the retry middleware.
func WithRetryOptions(opts ...retry.Option) GatewayOption {
	return func(o *gatewayOptions) { o.retryOpts = append(o.retryOpts, opts...) }
}

// WithRateLimitOptions forwards options to the rate gate.
func WithRateLimitOptions(opts ...ratelimit.Option) GatewayOption {
	return func(o *gatewayOptions) { o.gateOpts = append(o.gateOpts, opts...) }
}

// WithCoreHandler replaces the HTTP round trip, keeping retry and rate
// limiting in front of it. It also lifts the credential requirement.
func WithCoreHandler(h transport.Handler) GatewayOption {
	return func(o *gatewayOptions) {
		o.core = h
		o.requireCreds = false
	}
}

// NewGateway builds the gateway from configuration. A configuration without
// an API key yields llmerrors.ErrModelUnavailable: the pipeline cannot run
// without a model.
func NewGateway(cfg *configuration.Config, opts ...GatewayOption) (*Gateway, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	o := gatewayOptions{requireCreds: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.requireCreds && !cfg.Model.HasCredential() {
		return nil, llmerrors.ErrModelUnavailable
	}

	core := o.core
	if core == nil {
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{
				Transport: &http.Transport{
					Proxy:                 http.ProxyFromEnvironment,
					MaxIdleConns:          DefaultMaxIdleConns,
					MaxIdleConnsPerHost:   DefaultMaxIdleConns,
					IdleConnTimeout:       configuration.DefaultHTTPIdleTimeout,
					ExpectContinueTimeout: time.Second,
				},
			}
		}
		core = transport.NewHTTPHandler(httpClient, providers.NewGoogleAdapter(cfg.Model))
	}

	gate, err := ratelimit.New(cfg.RateLimit, o.redis, o.gateOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	retrier, err := retry.New(retry.PolicyFromConfig(cfg.Retry), o.retryOpts...)
	if err != nil {
		_ = gate.Close()
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}

	middlewares := []transport.Middleware{NewLoggingMiddleware(nil)}
	var breaker *circuitbreaker.Breaker
	if cfg.Breaker.Enabled {
		breaker = circuitbreaker.New(cfg.Breaker)
		middlewares = append(middlewares, breaker.Middleware())
	}
	middlewares = append(middlewares, retrier.Wrap(), gate.Middleware())

	return &Gateway{
		model:   cfg.Model,
		handler: transport.Chain(core, middlewares...),
		gate:    gate,
		retry:   retrier,
		breaker: breaker,
	}, nil
}

// Complete fills in model defaults and sends the request through the chain.
func (g *Gateway) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil {
		return nil, &llmerrors.ValidationError{Field: "request", Message: "nil request"}
	}
	r := *req
	if r.Model == "" {
		r.Model = g.model.Name
	}
	if r.Timeout == 0 {
		r.Timeout = g.model.RequestTimeout
	}
	return g.handler.Handle(ctx, &r)
}

// Stats reports retry, rate-gate and breaker counters.
func (g *Gateway) Stats() GatewayStats {
	stats := GatewayStats{Retry: g.retry.Stats(), RateLimit: g.gate.Stats()}
	if g.breaker != nil {
		b := g.breaker.Stats()
		stats.Breaker = &b
	}
	return stats
}

// Close releases resources owned by the gateway.
func (g *Gateway) Close() error {
	return g.gate.Close()
}

// GatewayStats groups middleware counters.
type GatewayStats struct {
	Retry     retry.Stats           `json:"retry"`
	RateLimit ratelimit.Stats       `json:"rate_limit"`
	Breaker   *circuitbreaker.Stats `json:"breaker,omitempty"`
}
