package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/meetingwhisperer/server/internal/session"
)

// RedisArchiver mirrors each meeting into Redis: the transcript as a list of
// JSON lines, action items and the final report as hash fields. Keys expire
// a day after the last write so abandoned sessions clean themselves up.
type RedisArchiver struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func NewRedis(cfg Config) (*RedisArchiver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "meeting:"
	}
	return &RedisArchiver{client: client, prefix: prefix, ttl: 24 * time.Hour}, nil
}

func (r *RedisArchiver) linesKey(sessionID string) string { return r.prefix + sessionID + ":lines" }
func (r *RedisArchiver) metaKey(sessionID string) string  { return r.prefix + sessionID }

func (r *RedisArchiver) AppendLine(ctx context.Context, sessionID string, line session.TranscriptLine) error {
	payload, err := json.Marshal(line)
	if err != nil {
		return err
	}
	key := r.linesKey(sessionID)
	if err := r.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redis RPUSH %s: %w", key, err)
	}
	r.client.Expire(ctx, key, r.ttl)
	return nil
}

func (r *RedisArchiver) StoreActionItems(ctx context.Context, sessionID string, items []session.ActionItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	key := r.metaKey(sessionID)
	if err := r.client.HSet(ctx, key, "action_items", payload).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	r.client.Expire(ctx, key, r.ttl)
	return nil
}

func (r *RedisArchiver) StoreFinal(ctx context.Context, sessionID string, final interface{}) error {
	payload, err := json.Marshal(final)
	if err != nil {
		return err
	}
	key := r.metaKey(sessionID)
	if err := r.client.HSet(ctx, key, "final_report", payload, "ended_at", time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	r.client.Expire(ctx, key, r.ttl)
	return nil
}

func (r *RedisArchiver) Close() error { return r.client.Close() }
