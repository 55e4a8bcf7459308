// Package redisfeed carries change signals across processes over Redis
// pub/sub.
//
// A Publisher writes each Signal to the channel "<prefix><resource>". A Bridge
// subscribes to those channels and relays every message into a local feed.Hub,
// so bindings in one process hear about writes made in another. When the Redis
// subscription drops the Bridge reports rentledger.ErrNotificationLost once and
// stops; it does not reconnect.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/feed"
)

// DefaultPrefix is prepended to resource names to form channel names.
const DefaultPrefix = "rentledger:feed:"

// Option configures a Publisher or Bridge.
type Option func(*options)

type options struct {
	prefix string
	logger *slog.Logger
	onLost func(error)
}

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOnLost registers a callback invoked when a Bridge loses its
// subscription.
func WithOnLost(fn func(error)) Option {
	return func(o *options) { o.onLost = fn }
}

func buildOptions(opts []Option) options {
	o := options{prefix: DefaultPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Publisher publishes signals to Redis.
type Publisher struct {
	client redis.UniversalClient
	opts   options
}

var _ feed.Publisher = (*Publisher)(nil)

// NewPublisher returns a Publisher using client.
func NewPublisher(client redis.UniversalClient, opts ...Option) *Publisher {
	return &Publisher{client: client, opts: buildOptions(opts)}
}

// Publish implements feed.Publisher.
func (p *Publisher) Publish(ctx context.Context, sig feed.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redisfeed: marshal signal: %w", err)
	}
	channel := p.opts.prefix + sig.Resource
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redisfeed: publish %s: %w", channel, err)
	}
	return nil
}

// Bridge relays Redis messages into a local publisher, usually a *feed.Hub.
type Bridge struct {
	client    redis.UniversalClient
	target    feed.Publisher
	resources []string
	opts      options

	mu      sync.Mutex
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewBridge creates a Bridge for the given resources.
func NewBridge(client redis.UniversalClient, target feed.Publisher, resources []string, opts ...Option) *Bridge {
	return &Bridge{
		client:    client,
		target:    target,
		resources: resources,
		opts:      buildOptions(opts),
	}
}

// Start subscribes and begins relaying. It returns once Redis confirms the
// subscription.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		return fmt.Errorf("redisfeed: bridge already started")
	}
	if len(b.resources) == 0 {
		return fmt.Errorf("redisfeed: bridge has no resources")
	}

	channels := make([]string, len(b.resources))
	for i, r := range b.resources {
		channels[i] = b.opts.prefix + r
	}

	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redisfeed: subscribe %s: %w", strings.Join(channels, ","), err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.pubsub = ps
	b.cancel = cancel
	b.done = make(chan struct{})
	b.stopped = false

	go b.relay(runCtx, ps.Channel())

	b.opts.logger.Info("redis feed bridge started", "channels", channels)
	return nil
}

// Stop unsubscribes and waits for the relay goroutine to exit.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.pubsub == nil {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	ps, cancel, done := b.pubsub, b.cancel, b.done
	b.pubsub = nil
	b.mu.Unlock()

	cancel()
	err := ps.Close()
	<-done
	return err
}

func (b *Bridge) relay(ctx context.Context, ch <-chan *redis.Message) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.lost()
				return
			}
			b.forward(ctx, msg)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, msg *redis.Message) {
	var sig feed.Signal
	if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
		b.opts.logger.Warn("redis feed: dropping malformed signal",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}
	if sig.Resource == "" {
		sig.Resource = strings.TrimPrefix(msg.Channel, b.opts.prefix)
	}
	if err := b.target.Publish(ctx, sig); err != nil {
		b.opts.logger.Warn("redis feed: relay failed",
			"resource", sig.Resource,
			"error", err,
		)
	}
}

func (b *Bridge) lost() {
	b.mu.Lock()
	deliberate := b.stopped
	b.mu.Unlock()
	if deliberate {
		return
	}

	b.opts.logger.Error("redis feed subscription lost", "error", rentledger.ErrNotificationLost)
	if b.opts.onLost != nil {
		b.opts.onLost(rentledger.ErrNotificationLost)
	}
}
