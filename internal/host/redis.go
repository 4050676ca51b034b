package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/moosbridge/pkg/moos"
	"github.com/redis/go-redis/v9"
)

// RedisComms is a Comms backed by Redis pub/sub. Each variable is a channel
// named moos:{community}:{variable} carrying JSON-encoded messages.
type RedisComms struct {
	client    *redis.Client
	community string
	logger    *slog.Logger

	mu         sync.Mutex
	name       string
	pubsub     *redis.PubSub
	cancel     context.CancelFunc
	done       chan struct{}
	inbox      chan moos.Message
	reconnects chan struct{}
}

var _ Comms = (*RedisComms)(nil)

// NewRedisComms creates a Redis comms client from a redis:// URL.
func NewRedisComms(url, community string, logger *slog.Logger) (*RedisComms, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisCommsWithClient(redis.NewClient(opts), community, logger), nil
}

// NewRedisCommsWithClient creates a comms client over an existing Redis
// client.
func NewRedisCommsWithClient(client *redis.Client, community string, logger *slog.Logger) *RedisComms {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisComms{
		client:     client,
		community:  community,
		logger:     logger,
		inbox:      make(chan moos.Message, DefaultInboxSize),
		reconnects: make(chan struct{}, 1),
	}
}

// channel creates the channel name of a variable.
func (r *RedisComms) channel(name string) string {
	return fmt.Sprintf("moos:%s:%s", r.community, name)
}

// variable strips the channel prefix.
func (r *RedisComms) variable(channel string) string {
	return strings.TrimPrefix(channel, fmt.Sprintf("moos:%s:", r.community))
}

func (r *RedisComms) Connect(ctx context.Context, client string) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub != nil {
		return nil
	}

	r.name = client
	r.pubsub = r.client.Subscribe(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.receive(loopCtx, r.pubsub, r.done)

	r.logger.Info("redis comms connected",
		"community", r.community,
		"client", client,
	)
	return nil
}

// receive pumps pub/sub messages into the inbox. A failed Receive marks the
// connection as lost; the next successful one signals a reconnection.
func (r *RedisComms) receive(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)

	lost := false
	for {
		raw, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !lost {
				r.logger.Warn("redis subscription lost", "error", err)
			}
			lost = true
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		if lost {
			lost = false
			r.logger.Info("redis subscription re-established")
			select {
			case r.reconnects <- struct{}{}:
			default:
			}
		}

		msg, ok := raw.(*redis.Message)
		if !ok {
			continue
		}

		var decoded moos.Message
		if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
			r.logger.Warn("invalid message payload",
				"channel", msg.Channel,
				"error", err,
			)
			continue
		}
		if decoded.Key == "" {
			decoded.Key = r.variable(msg.Channel)
		}

		select {
		case r.inbox <- decoded:
		default:
			r.logger.Warn("inbox full, message dropped", "key", decoded.Key)
		}
	}
}

func (r *RedisComms) Publish(ctx context.Context, msg moos.Message) error {
	r.mu.Lock()
	connected := r.pubsub != nil
	if msg.Source == "" {
		msg.Source = r.name
	}
	r.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(msg.Key), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Key, err)
	}
	return nil
}

func (r *RedisComms) Subscribe(ctx context.Context, names ...string) error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.mu.Unlock()

	if pubsub == nil {
		return ErrNotConnected
	}
	if len(names) == 0 {
		return nil
	}

	channels := make([]string, 0, len(names))
	for _, name := range names {
		channels = append(channels, r.channel(name))
	}
	if err := pubsub.Subscribe(ctx, channels...); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (r *RedisComms) Inbox() <-chan moos.Message {
	return r.inbox
}

func (r *RedisComms) Reconnects() <-chan struct{} {
	return r.reconnects
}

func (r *RedisComms) Close() error {
	r.mu.Lock()
	pubsub, cancel, done := r.pubsub, r.cancel, r.done
	r.pubsub, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			r.logger.Warn("error closing subscription", "error", err)
		}
	}
	if done != nil {
		<-done
	}

	if err := r.client.Close(); err != nil {
		return err
	}
	r.logger.Info("redis comms closed", "community", r.community)
	return nil
}
