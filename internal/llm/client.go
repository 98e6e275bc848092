package llm

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientConfig tunes the failover client.
type ClientConfig struct {
	// Strategy orders providers per call. Default StrategyFallback.
	Strategy Strategy

	// CallTimeout bounds each individual provider attempt. Default 45s.
	CallTimeout time.Duration

	// MaxRetries is the number of additional attempts per provider on a
	// retryable error, before failing over. Default 2.
	MaxRetries int

	// RetryBackoff is the base delay between retries on the same provider,
	// doubled per attempt. Default 500ms.
	RetryBackoff time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Strategy == "" {
		c.Strategy = StrategyFallback
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 45 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Client fans a completion request across providers: each provider gets
// bounded retries on transient failures, then the next one is tried. The
// caller sees a single Complete call.
type Client struct {
	providers []Provider
	cfg       ClientConfig

	rrCounter uint64

	// provider name → rolling average latency ms
	latencyMu sync.RWMutex
	latencies map[string]int64
}

// NewClient creates a failover client over the given providers, tried in
// the order implied by cfg.Strategy.
func NewClient(providers []Provider, cfg ClientConfig) *Client {
	return &Client{
		providers: providers,
		cfg:       cfg.withDefaults(),
		latencies: make(map[string]int64),
	}
}

// Complete runs the request against the provider chain. The returned error
// is *Error with code ErrNoProviders or ErrAllProvidersFailed; the latter
// wraps the last provider failure.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if len(c.providers) == 0 {
		return nil, newError(ErrNoProviders, "", "no model providers configured", nil)
	}

	ordered := c.orderProviders()

	var lastErr error
	for _, provider := range ordered {
		resp, err := c.completeWithRetries(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("provider", provider.Name()).
			Msg("provider exhausted, failing over")

		if ctx.Err() != nil {
			break
		}
	}
	return nil, newError(ErrAllProvidersFailed, "", "all providers failed", lastErr)
}

// completeWithRetries runs one provider with per-attempt timeout and bounded
// retries on retryable errors.
func (c *Client) completeWithRetries(ctx context.Context, provider Provider, req CompletionRequest) (*Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBackoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, newError(ErrTimeout, provider.Name(), "canceled while waiting to retry", ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		start := time.Now()
		resp, err := provider.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			latency := time.Since(start).Milliseconds()
			resp.LatencyMs = latency
			c.observeLatency(provider.Name(), latency)
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		log.Debug().
			Err(err).
			Str("provider", provider.Name()).
			Int("attempt", attempt+1).
			Msg("retryable provider error")
	}
	return nil, lastErr
}

func (c *Client) orderProviders() []Provider {
	switch c.cfg.Strategy {
	case StrategyLatency:
		ordered := make([]Provider, len(c.providers))
		copy(ordered, c.providers)
		c.latencyMu.RLock()
		sort.SliceStable(ordered, func(i, j int) bool {
			li := c.latencies[ordered[i].Name()]
			lj := c.latencies[ordered[j].Name()]
			if li == 0 {
				li = 1000 // unknown providers assume 1s
			}
			if lj == 0 {
				lj = 1000
			}
			return li < lj
		})
		c.latencyMu.RUnlock()
		return ordered

	case StrategyRoundRobin:
		idx := atomic.AddUint64(&c.rrCounter, 1)
		n := len(c.providers)
		rotated := make([]Provider, n)
		for i := 0; i < n; i++ {
			rotated[i] = c.providers[(int(idx)+i)%n]
		}
		return rotated

	default:
		return c.providers
	}
}

func (c *Client) observeLatency(provider string, latencyMs int64) {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	prev := c.latencies[provider]
	if prev == 0 {
		c.latencies[provider] = latencyMs
		return
	}
	// Exponential moving average, weighted toward history.
	c.latencies[provider] = (prev*7 + latencyMs*3) / 10
}
