package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records which users hold live connections and fans notification
// payloads out to other server instances over Redis pub/sub.
//
// Keys:
//   - chat:online:<userID> -> set of instance ids holding a connection
//
// Channel:
//   - chat:notify:<userID> -> JSON notification payloads
type Store struct {
	client   *redis.Client
	instance string
	ttl      time.Duration
}

// NewStore builds a presence store bound to this server instance.
func NewStore(client *redis.Client, instanceID string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, instance: instanceID, ttl: ttl}
}

func onlineKey(userID string) string { return fmt.Sprintf("chat:online:%s", userID) }

// NotifyChannel is the pub/sub channel carrying a user's notifications.
func NotifyChannel(userID string) string { return fmt.Sprintf("chat:notify:%s", userID) }

// Register marks the user online on this instance.
func (s *Store) Register(ctx context.Context, userID string) error {
	key := onlineKey(userID)
	if err := s.client.SAdd(ctx, key, s.instance).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

// Unregister removes this instance from the user's online set.
func (s *Store) Unregister(ctx context.Context, userID string) error {
	return s.client.SRem(ctx, onlineKey(userID), s.instance).Err()
}

// Publish fans a notification payload out to every instance subscribed for
// the user.
func (s *Store) Publish(ctx context.Context, userID string, payload []byte) error {
	return s.client.Publish(ctx, NotifyChannel(userID), payload).Err()
}

// Subscribe opens a pub/sub subscription for the user's notification channel.
func (s *Store) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return s.client.Subscribe(ctx, NotifyChannel(userID))
}
