package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/catscratch/catbot/environments"
	"github.com/catscratch/catbot/pkg/logger"
)

// Client caches the platform message reference of the most recent delivery
// per schedule id, so vote re-renders skip a database read on the hot path.
// The message_ref column on the record stays authoritative.
//
// A nil *Client is valid and disables caching, which is how the service runs
// when Redis is unavailable at startup.
type Client struct {
	client valkey.Client
}

const (
	messageRefKeyPrefix = "message_ref:"
	messageRefTTL       = 24 * time.Hour
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

func (c *Client) CacheMessageRef(ctx context.Context, scheduleID, messageRef string) error {
	if c == nil {
		return nil
	}

	key := messageRefKeyPrefix + scheduleID

	err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(messageRef).Ex(messageRefTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache message ref: %w", err)
	}

	logger.Debugf("Cached message ref %s -> %s in Redis", scheduleID, messageRef)

	return nil
}

// GetMessageRef returns the cached ref, or "" on a miss.
func (c *Client) GetMessageRef(ctx context.Context, scheduleID string) (string, error) {
	if c == nil {
		return "", nil
	}

	key := messageRefKeyPrefix + scheduleID

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get cached message ref: %w", result.Error())
	}

	ref, err := result.ToString()
	if err != nil {
		return "", fmt.Errorf("failed to read cached message ref: %w", err)
	}

	return ref, nil
}

func (c *Client) DeleteMessageRef(ctx context.Context, scheduleID string) error {
	if c == nil {
		return nil
	}

	key := messageRefKeyPrefix + scheduleID

	if err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete cached message ref: %w", err)
	}

	return nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
