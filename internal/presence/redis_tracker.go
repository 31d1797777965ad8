// Package presence tracks which users are currently active or typing in a
// chat. Entries live in Redis under TTL'd keys so a crashed client simply
// ages out of the active list.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

// FreshnessWindow bounds how long a user counts as active after their last
// signal. It doubles as the key TTL.
const FreshnessWindow = 5 * time.Minute

// Activity kinds accepted by RecordActivity.
const (
	KindJoin       = "join"
	KindTyping     = "typing"
	KindStopTyping = "stop_typing"
	KindLeave      = "leave"
)

// entry is the JSON payload stored per (chat, user) key.
type entry struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	LastSeen time.Time `json:"last_seen"`
	IsTyping bool      `json:"is_typing"`
}

// RedisTracker implements presence storage using Redis
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker creates a new Redis-backed presence tracker
func NewRedisTracker(redisURL string) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisTracker{
		client: client,
		prefix: "presence:",
	}, nil
}

// NewRedisTrackerWithClient creates a tracker from an existing Redis client
func NewRedisTrackerWithClient(client *redis.Client) *RedisTracker {
	return &RedisTracker{
		client: client,
		prefix: "presence:",
	}
}

// key generates the Redis key for a (chat, user) pair
func (t *RedisTracker) key(chatID, userID string) string {
	return t.prefix + chatID + ":" + userID
}

// RecordActivity applies one activity signal. Join and typing signals
// refresh the entry and its TTL; leave removes it outright. Unknown kinds
// are rejected so client typos surface instead of silently dropping.
func (t *RedisTracker) RecordActivity(ctx context.Context, chatID, userID, name, avatar, kind string) error {
	key := t.key(chatID, userID)

	switch kind {
	case KindLeave:
		if err := t.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("remove presence: %w", err)
		}
		return nil
	case KindJoin, KindTyping, KindStopTyping:
	default:
		return fmt.Errorf("unknown activity kind %q", kind)
	}

	data := entry{
		UserID:   userID,
		Name:     name,
		Avatar:   avatar,
		LastSeen: time.Now(),
		IsTyping: kind == KindTyping,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal presence entry: %w", err)
	}

	if err := t.client.Set(ctx, key, jsonData, FreshnessWindow).Err(); err != nil {
		return fmt.Errorf("save presence entry: %w", err)
	}

	return nil
}

// ListActive returns the users currently active in the chat, excluding
// excludeUserID (pass "" to include everyone). Ordering is stable by name so
// polling clients do not see the roster reshuffle between requests.
func (t *RedisTracker) ListActive(ctx context.Context, chatID, excludeUserID string) ([]store.ActiveUser, error) {
	pattern := t.prefix + chatID + ":*"

	var users []store.ActiveUser
	iter := t.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		jsonData, err := t.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			// Expired between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read presence entry: %w", err)
		}

		var data entry
		if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
			return nil, fmt.Errorf("unmarshal presence entry: %w", err)
		}
		if data.UserID == excludeUserID {
			continue
		}
		// The key TTL normally handles expiry; re-check here so a lagging
		// eviction cannot surface a stale entry.
		if time.Since(data.LastSeen) > FreshnessWindow {
			continue
		}

		users = append(users, store.ActiveUser{
			UserID:   data.UserID,
			Name:     data.Name,
			Avatar:   data.Avatar,
			LastSeen: data.LastSeen,
			IsTyping: data.IsTyping,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// Close closes the Redis connection
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// Ping checks if Redis is reachable
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
