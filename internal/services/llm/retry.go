package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

// RetryConfig defines retry behaviour for provider calls
type RetryConfig struct {
	// MaxRetries is the number of retries after the first call
	MaxRetries int

	// InitialBackoff is the base wait before a retry after a rate limit
	InitialBackoff time.Duration

	// MaxBackoff caps every wait
	MaxBackoff time.Duration

	// BackoffMultiplier is applied per attempt
	BackoffMultiplier float64
}

const (
	DefaultMaxRetries        = 2
	DefaultInitialBackoff    = 20 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultBackoffMultiplier = 1.5
)

// NewDefaultRetryConfig returns the retry settings used for cover letters.
// Letters are generated inside an apply run, so retries stay short.
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// IsRateLimitError matches 429 responses and quota exhaustion from either provider
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs"
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses an API-suggested retry delay from an error.
// Returns 0 if none is present.
//
// Example: "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff computes the wait before retry number attempt (0-based).
// A positive apiDelay replaces InitialBackoff as the base. Capped at MaxBackoff.
func (c *RetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	return backoff
}

// backoffFor picks the wait after a failed call. Rate limits use the
// configured curve, other errors a short linear step.
func (c *RetryConfig) backoffFor(attempt int, err error) time.Duration {
	if IsRateLimitError(err) {
		return c.CalculateBackoff(attempt, ExtractRetryDelay(err))
	}
	d := time.Duration(attempt+1) * 2 * time.Second
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// withRetry runs call until it succeeds, retries run out, or ctx ends
func withRetry[T any](ctx context.Context, cfg *RetryConfig, name string, logger arbor.ILogger, call func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		res, err = call()
		if err == nil {
			return res, nil
		}
		if attempt == cfg.MaxRetries {
			break
		}

		backoff := cfg.backoffFor(attempt, err)
		logger.Warn().
			Str("provider", name).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying provider call")

		if serr := common.Sleep(ctx, backoff); serr != nil {
			return res, serr
		}
	}
	return res, err
}
