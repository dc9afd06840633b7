// Package quote decorates quote subscriptions with reconnect behavior.
// The underlying client deliberately never reconnects; callers that
// want resilience opt in by wrapping their subscription here.
package quote

import (
	"context"
	"sync"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// SubscribeFunc opens one quote subscription attempt for a symbol set.
type SubscribeFunc func(ctx context.Context, symbols []string) (interfaces.QuoteSubscription, error)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Redialer is a QuoteSubscription that survives transport failures by
// re-dialing with exponential backoff. Snapshots from successive
// connections flow through one channel; a gap during reconnection just
// looks like a quiet market to the consumer. Backoff resets after a
// connection delivers at least one snapshot.
type Redialer struct {
	subscribe SubscribeFunc
	symbols   []string
	logger    *common.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration

	snapshots chan models.QuoteSnapshot
	cancel    context.CancelFunc
	closeOnce sync.Once
	stopped   chan struct{}
}

// RedialerOption configures a Redialer
type RedialerOption func(*Redialer)

// WithBackoff sets the initial and maximum reconnect delays
func WithBackoff(initial, max time.Duration) RedialerOption {
	return func(r *Redialer) {
		r.initialBackoff = initial
		r.maxBackoff = max
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) RedialerOption {
	return func(r *Redialer) {
		r.logger = logger
	}
}

// NewRedialer dials the first connection and starts the reconnect loop.
// The first dial's error is returned directly so a misconfigured
// endpoint fails fast instead of retrying forever.
func NewRedialer(ctx context.Context, subscribe SubscribeFunc, symbols []string, opts ...RedialerOption) (*Redialer, error) {
	r := &Redialer{
		subscribe:      subscribe,
		symbols:        symbols,
		logger:         common.NewDefaultLogger(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		snapshots:      make(chan models.QuoteSnapshot),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	first, err := subscribe(ctx, symbols)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	go r.run(loopCtx, first)
	return r, nil
}

// Snapshots delivers snapshots across reconnects. The channel closes
// only when the redialer itself is closed.
func (r *Redialer) Snapshots() <-chan models.QuoteSnapshot {
	return r.snapshots
}

// Close stops reconnecting and tears down the active connection. No
// snapshot is delivered after Close returns. Safe to call repeatedly.
func (r *Redialer) Close() error {
	r.closeOnce.Do(r.cancel)
	<-r.stopped
	return nil
}

func (r *Redialer) run(ctx context.Context, current interfaces.QuoteSubscription) {
	defer close(r.stopped)
	defer close(r.snapshots)

	backoff := r.initialBackoff

	for {
		delivered := r.forward(ctx, current)
		current.Close()

		if ctx.Err() != nil {
			return
		}
		if delivered {
			backoff = r.initialBackoff
		}

		r.logger.Warn().
			Dur("backoff", backoff).
			Msg("Quote stream lost; reconnecting")

		next, err := r.redial(ctx, backoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// redial keeps trying until the context ends
			return
		}
		current = next
		if backoff < r.maxBackoff {
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		}
	}
}

// forward pumps the active connection into the shared channel until it
// ends. Reports whether any snapshot made it through.
func (r *Redialer) forward(ctx context.Context, sub interfaces.QuoteSubscription) bool {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				return delivered
			}
			select {
			case r.snapshots <- snapshot:
				delivered = true
			case <-ctx.Done():
				return delivered
			}
		}
	}
}

// redial attempts new connections until one succeeds or the context
// ends, sleeping the given backoff before each attempt.
func (r *Redialer) redial(ctx context.Context, backoff time.Duration) (interfaces.QuoteSubscription, error) {
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		sub, err := r.subscribe(ctx, r.symbols)
		if err == nil {
			return sub, nil
		}

		r.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Quote stream redial failed")
		if backoff < r.maxBackoff {
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		}
	}
}

// Ensure Redialer implements QuoteSubscription
var _ interfaces.QuoteSubscription = (*Redialer)(nil)
