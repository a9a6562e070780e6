package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrNoReply matches every *TimeoutError.
	ErrNoReply = errors.New("no response received")
	// ErrClientStopped is returned by every operation after Stop.
	ErrClientStopped = errors.New("osc client stopped")
	// ErrMalformedReply is returned when a reply does not have the expected shape.
	ErrMalformedReply = errors.New("malformed reply")
)

// TimeoutError reports a query or awaited message that did not arrive in time.
type TimeoutError struct {
	Address string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response received to query: %s (waited %v)", e.Address, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrNoReply
}

// Query sends a message to address and waits up to the client's default
// timeout for the reply on the same address.
func (c *Client) Query(ctx context.Context, address string, args ...any) ([]any, error) {
	return c.QueryTimeout(ctx, address, c.timeout, args...)
}

// QueryTimeout is Query with an explicit timeout.
func (c *Client) QueryTimeout(ctx context.Context, address string, timeout time.Duration, args ...any) ([]any, error) {
	queriesTotal.Inc()
	return c.wait(ctx, address, timeout, func() error {
		return c.SendMessage(address, args...)
	})
}

// AwaitMessage waits up to timeout for an unsolicited message on address
// and returns its arguments.
func (c *Client) AwaitMessage(ctx context.Context, address string, timeout time.Duration) ([]any, error) {
	return c.wait(ctx, address, timeout, nil)
}

// addressLock returns the one-slot semaphore serialising waits on address.
func (c *Client) addressLock(address string) chan struct{} {
	lock, _ := c.addressLocks.LoadOrStore(address, make(chan struct{}, 1))
	return lock
}

// wait registers a one-shot waiter for address, runs send, and blocks until
// the reply arrives, the timeout elapses, ctx is done or the client stops.
// The waiter is released on every path.
func (c *Client) wait(ctx context.Context, address string, timeout time.Duration, send func() error) ([]any, error) {
	if c.isStopped() {
		return nil, ErrClientStopped
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	lock := c.addressLock(address)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopping:
		return nil, ErrClientStopped
	}
	defer func() { <-lock }()

	key := requestKey(address, uuid.NewString())
	waiter := &pendingReply{address: address, reply: make(chan []any, 1)}
	c.pending.Store(key, waiter)
	defer c.pending.Delete(key)

	start := time.Now()
	if send != nil {
		if err := send(); err != nil {
			return nil, err
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case args := <-waiter.reply:
		queryDuration.UpdateDuration(start)
		log.Debugf("Reply received for %s in %v", address, time.Since(start))
		return args, nil
	case <-timer.C:
		queryTimeoutsTotal.Inc()
		log.Debugf("Timeout waiting for reply on %s after %v", address, timeout)
		return nil, &TimeoutError{Address: address, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopping:
		return nil, ErrClientStopped
	}
}
