package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/helixir/book-recommendation-service/internal/observability"
)

// Breaker names for the pipeline's collaborators.
const (
	BreakerLLM         = "llm"
	BreakerEmbedder    = "embedder"
	BreakerOpenLibrary = "openlibrary"
	BreakerKCLS        = "kcls"
)

// BreakerConfig configures one named breaker.
type BreakerConfig struct {
	// ConsecutiveThreshold is the number of consecutive transient failures that opens the circuit.
	ConsecutiveThreshold uint32 `mapstructure:"consecutive_threshold"`

	// Cooldown is how long the circuit stays open before a trial request.
	Cooldown time.Duration `mapstructure:"cooldown"`

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32 `mapstructure:"max_requests"`
}

// Default circuit breaker configurations for upstream collaborators.
var defaultBreakerConfigs = map[string]BreakerConfig{
	BreakerLLM: {
		ConsecutiveThreshold: 3,
		Cooldown:             30 * time.Second,
		MaxRequests:          1,
	},
	BreakerEmbedder: {
		ConsecutiveThreshold: 3,
		Cooldown:             30 * time.Second,
		MaxRequests:          1,
	},
	BreakerOpenLibrary: {
		ConsecutiveThreshold: 5,
		Cooldown:             60 * time.Second,
		MaxRequests:          3,
	},
	BreakerKCLS: {
		ConsecutiveThreshold: 5,
		Cooldown:             60 * time.Second,
		MaxRequests:          3,
	},
}

var fallbackBreakerConfig = BreakerConfig{
	ConsecutiveThreshold: 5,
	Cooldown:             60 * time.Second,
	MaxRequests:          1,
}

// BreakerRegistry provides named circuit breakers for upstream collaborators.
// It is safe for concurrent use and lazily creates breakers on first access.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	configs  map[string]BreakerConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewBreakerRegistry creates a BreakerRegistry with default configurations
// for all known collaborators.
func NewBreakerRegistry(logger zerolog.Logger, metrics *observability.Metrics) *BreakerRegistry {
	return NewBreakerRegistryWithConfigs(nil, logger, metrics)
}

// NewBreakerRegistryWithConfigs creates a BreakerRegistry with custom configurations.
// Any name not in the provided map falls back to its default.
func NewBreakerRegistryWithConfigs(configs map[string]BreakerConfig, logger zerolog.Logger, metrics *observability.Metrics) *BreakerRegistry {
	merged := make(map[string]BreakerConfig, len(defaultBreakerConfigs))
	for k, v := range defaultBreakerConfigs {
		merged[k] = v
	}
	for k, v := range configs {
		merged[k] = v
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		configs:  merged,
		logger:   logger.With().Str("component", "circuit-breakers").Logger(),
		metrics:  metrics,
	}
}

// Get returns the circuit breaker for the given collaborator name, creating it
// on first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg, ok := r.configs[name]
	if !ok {
		cfg = fallbackBreakerConfig
	}
	if cfg.ConsecutiveThreshold == 0 {
		cfg.ConsecutiveThreshold = fallbackBreakerConfig.ConsecutiveThreshold
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err) == Permanent
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if r.metrics != nil {
				r.metrics.RecordBreakerStateChange(name, from.String(), to.String())
			}
		},
	})

	r.breakers[name] = cb
	return cb
}

// State returns the current state of the named breaker, or StateClosed
// if the breaker has not been created yet.
func (r *BreakerRegistry) State(name string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// States returns the state of every breaker created so far.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// Execute runs fn through the named breaker of r. A nil registry runs fn directly.
func Execute[T any](r *BreakerRegistry, name string, fn func() (T, error)) (T, error) {
	if r == nil {
		return fn()
	}

	result, err := r.Get(name).Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := result.(T)
	if !ok && result != nil {
		var zero T
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", name, result)
	}
	return typed, nil
}
