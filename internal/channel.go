package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetryAttempts is the number of attempts made per backend call
	DefaultRetryAttempts = 3
	// DefaultRetryBaseDelay is multiplied by the attempt number to get the wait
	DefaultRetryBaseDelay = 1000 * time.Millisecond
)

// Transport sends one request to the backend and returns the raw result
type Transport interface {
	Send(ctx context.Context, op string, payload any) (json.RawMessage, error)
}

// linearBackOff waits base*i after the i-th failed attempt
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// RemoteChannel wraps a Transport with bounded linear retry
type RemoteChannel struct {
	transport Transport
	notices   *Notifier
	attempts  int
	baseDelay time.Duration
	newTimer  func() backoff.Timer
}

// ChannelOption configures a RemoteChannel
type ChannelOption func(*RemoteChannel)

// WithRetry overrides the attempt count and base delay
func WithRetry(attempts int, baseDelay time.Duration) ChannelOption {
	return func(c *RemoteChannel) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithTimerFactory sets the timer used between attempts; each call gets a fresh timer
func WithTimerFactory(f func() backoff.Timer) ChannelOption {
	return func(c *RemoteChannel) {
		c.newTimer = f
	}
}

// NewRemoteChannel creates a RemoteChannel. notices may be nil.
func NewRemoteChannel(transport Transport, notices *Notifier, opts ...ChannelOption) *RemoteChannel {
	c := &RemoteChannel{
		transport: transport,
		notices:   notices,
		attempts:  DefaultRetryAttempts,
		baseDelay: DefaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes op with payload, retrying on failure, and decodes the result into out
// when out is non-nil. Exhausted retries yield a *TransportError.
func (c *RemoteChannel) Call(ctx context.Context, op string, payload any, out any) error {
	raw, err := c.CallRaw(ctx, op, payload)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Source: "response", Key: op, Err: err}
	}
	return nil
}

// CallRaw is Call without decoding
func (c *RemoteChannel) CallRaw(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	attempt := 0
	operation := func() (json.RawMessage, error) {
		attempt++
		LogDebug("Calling %s (attempt %d/%d)", op, attempt, c.attempts)
		res, err := c.transport.Send(ctx, op, payload)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		LogWarn("%s failed (attempt %d/%d): %v", op, attempt, c.attempts, err)
		if c.notices != nil {
			c.notices.Warning(fmt.Sprintf("Connection problem, retrying in %s (attempt %d/%d)",
				wait, attempt, c.attempts), wait)
		}
	}

	// WithMaxRetries treats zero as unlimited
	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.attempts > 1 {
		b = backoff.WithMaxRetries(&linearBackOff{base: c.baseDelay}, uint64(c.attempts-1))
	}
	b = backoff.WithContext(b, ctx)

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	res, err := backoff.RetryNotifyWithTimerAndData(operation, b, notify, timer)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			LogError("%s failed after %d attempt(s): %v", op, attempt, err)
		}
		return nil, &TransportError{Op: op, Attempts: attempt, Err: err}
	}
	return res, nil
}
