package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vk/calcgrid/internal/ctxlog"
)

// DefaultChannelPrefix prefixes the Redis channel of every document.
const DefaultChannelPrefix = "calcgrid:doc:"

// Redis publishes messages on one Redis channel per document.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Publisher = (*Redis)(nil)

// NewRedis wraps a connected client. An empty prefix uses
// DefaultChannelPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Dial connects to the server at url, e.g. "redis://localhost:6379/0", and
// checks it answers.
func Dial(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Channel returns the channel name of a document.
func (r *Redis) Channel(documentID string) string {
	return r.prefix + documentID
}

// Publish implements Publisher.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(msg.DocumentID), payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe relays the messages published for a document until ctx is done
// or the returned function is called.
func (r *Redis) Subscribe(ctx context.Context, documentID string) (<-chan Message, func() error) {
	logger := ctxlog.FromContext(ctx)
	pubsub := r.client.Subscribe(ctx, r.Channel(documentID))
	out := make(chan Message, DefaultBuffer)

	go func() {
		defer close(out)
		for raw := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("Ignoring malformed event message.", "channel", raw.Channel, "error", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
