package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
)

// flakyBroker fails GetSpot with err until failures calls have been made.
type flakyBroker struct {
	calls    int32
	failures int32
	err      error
}

func (f *flakyBroker) GetSpot(context.Context, string) (float64, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return 0, f.err
	}
	return 500, nil
}

func (f *flakyBroker) GetExpirations(context.Context, string) ([]string, error) {
	return []string{"2025-03-14"}, nil
}

func (f *flakyBroker) GetOptionChain(context.Context, string, string) ([]broker.Option, error) {
	return nil, nil
}

func (f *flakyBroker) PlaceComboOrder(context.Context, broker.ComboOrder) (*broker.OrderResponse, error) {
	return nil, errors.New("not supported")
}

func (f *flakyBroker) CancelOrder(context.Context, string) error { return nil }

var fastConfig = Config{
	MaxRetries:     3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
	Timeout:        time.Second,
}

var testNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(&flakyBroker{}, nil, Config{MaxRetries: -1})
	assert.Equal(t, 0, c.config.MaxRetries)
	assert.Equal(t, DefaultConfig.InitialBackoff, c.config.InitialBackoff)
	assert.Equal(t, DefaultConfig.Timeout, c.config.Timeout)

	assert.Panics(t, func() { NewClient(nil, nil) })
}

func TestLoadChain_RetriesTransientErrors(t *testing.T) {
	b := &flakyBroker{failures: 2, err: errors.New("upstream 503 service unavailable")}
	c := NewClient(b, nil, fastConfig)

	chain, err := c.LoadChain(context.Background(), "SPY", testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, 500.0, chain.Spot())
	assert.Equal(t, int32(3), atomic.LoadInt32(&b.calls))
}

func TestLoadChain_GivesUpAfterMaxRetries(t *testing.T) {
	b := &flakyBroker{failures: 10, err: errors.New("connection reset by peer")}
	c := NewClient(b, nil, fastConfig)

	_, err := c.LoadChain(context.Background(), "SPY", testNow, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int32(4), atomic.LoadInt32(&b.calls))
}

func TestLoadChain_PermanentErrorFailsFast(t *testing.T) {
	b := &flakyBroker{failures: 10, err: errors.New("unknown symbol")}
	c := NewClient(b, nil, fastConfig)

	_, err := c.LoadChain(context.Background(), "SPY", testNow, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.calls))
}

func TestLoadChain_CanceledContext(t *testing.T) {
	c := NewClient(&flakyBroker{}, nil, fastConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.LoadChain(ctx, "SPY", testNow, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("request timeout"), true},
		{errors.New("HTTP 429 rate limit"), true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{errors.New("invalid symbol"), false},
		{gobreaker.ErrOpenState, false},
		{fmt.Errorf("getting spot: %w", gobreaker.ErrTooManyRequests), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "err=%v", tt.err)
	}
}
