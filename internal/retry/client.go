// Package retry reloads market data across transient broker failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Timeout:        30 * time.Second,
}

// Client retries chain reads. Order placement and cancellation are never retried here.
type Client struct {
	broker broker.Broker
	logger logrus.FieldLogger
	config Config
}

func NewClient(b broker.Broker, logger logrus.FieldLogger, config ...Config) *Client {
	if b == nil {
		panic("retry.NewClient: broker must not be nil")
	}
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "retry")
	}

	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// LoadChain loads a chain snapshot, retrying transient failures with jittered backoff.
func (c *Client) LoadChain(
	ctx context.Context,
	symbol string,
	now time.Time,
	keep func(expiry time.Time) bool,
) (*broker.ChainSnapshot, error) {
	loadCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
		}
		if loadCtx.Err() != nil {
			return nil, fmt.Errorf("chain load timed out after %v: %w", c.config.Timeout, loadCtx.Err())
		}

		chain, err := broker.LoadChainSnapshot(loadCtx, c.broker, symbol, now, keep)
		if err == nil {
			if attempt > 0 {
				c.logger.WithFields(logrus.Fields{"symbol": symbol, "attempt": attempt + 1}).Info("Chain loaded after retry")
			}
			return chain, nil
		}

		lastErr = err
		log := c.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":  symbol,
			"attempt": attempt + 1,
		})

		if !IsTransient(err) || attempt == c.config.MaxRetries {
			log.Warn("Chain load failed")
			break
		}

		log.WithField("backoff", backoff).Debug("Transient chain load error, retrying")
		select {
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		case <-loadCtx.Done():
			return nil, fmt.Errorf("chain load timed out during backoff: %w", loadCtx.Err())
		case <-ctx.Done():
			return nil, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to load %s chain: %w", symbol, lastErr)
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// IsTransient reports whether err looks like a temporary upstream failure. An open circuit
// breaker is not transient: retrying would only hold the breaker open.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
