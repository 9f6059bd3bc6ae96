package external

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pharmaguard-server/internal/domain"
)

// defaultMemoryCacheSize bounds the in-process explanation cache when the
// configured size is zero.
const defaultMemoryCacheSize = 256

// ResilientExplainer wraps the explanation client with a circuit breaker and
// two cache tiers: an in-process LRU and an optional shared Redis cache.
// Identical analyses are answered from cache without touching the model; when
// the breaker is open, cached narratives are still served.
type ResilientExplainer struct {
	logger  *logrus.Logger
	client  *ExplainClient
	cache   *CacheClient
	memory  *lru.Cache[string, domain.Explanation]
	breaker *gobreaker.CircuitBreaker
}

// NewResilientExplainer creates a resilient explanation generator. cache may
// be nil when Redis is not configured; the in-memory tier always runs.
func NewResilientExplainer(
	logger *logrus.Logger,
	client *ExplainClient,
	cache *CacheClient,
	memorySize int,
) (*ResilientExplainer, error) {
	if memorySize <= 0 {
		memorySize = defaultMemoryCacheSize
	}

	memory, err := lru.New[string, domain.Explanation](memorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create explanation memory cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ExplanationModel",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientExplainer{
		logger:  logger,
		client:  client,
		cache:   cache,
		memory:  memory,
		breaker: breaker,
	}, nil
}

// GenerateExplanation returns a narrative for one analysis, consulting the
// memory tier, then Redis, then the model behind the circuit breaker.
func (r *ResilientExplainer) GenerateExplanation(ctx context.Context, req *domain.ExplanationRequest) (domain.Explanation, error) {
	key := explanationKey(req)

	if cached, ok := r.memory.Get(key); ok {
		return cached, nil
	}

	if r.cache != nil {
		if cached, found, err := r.cache.GetExplanation(ctx, req); err == nil && found {
			r.memory.Add(key, *cached)
			return *cached, nil
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.GenerateExplanation(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return domain.Explanation{}, fmt.Errorf("explanation model unavailable (circuit breaker open)")
		}
		return domain.Explanation{}, fmt.Errorf("explanation generation failed: %w", err)
	}

	explanation := result.(domain.Explanation)
	r.memory.Add(key, explanation)

	if r.cache != nil {
		if cacheErr := r.cache.SetExplanation(ctx, req, &explanation, 0); cacheErr != nil {
			// A cache write failure never fails the request.
			r.logger.WithError(cacheErr).Warn("Failed to cache explanation")
		}
	}

	return explanation, nil
}

// BreakerCounts exposes circuit breaker statistics for health reporting.
func (r *ResilientExplainer) BreakerCounts() gobreaker.Counts {
	return r.breaker.Counts()
}

// BreakerState exposes the current circuit breaker state.
func (r *ResilientExplainer) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// Close releases the Redis tier, if configured.
func (r *ResilientExplainer) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}
