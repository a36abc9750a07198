package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for the Redis store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	MaxRetries   int           `yaml:"maxRetries"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PoolSize     int           `yaml:"poolSize"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:    "fms",
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore keeps the same JSON documents as FileStore under
// <prefix>:credits:<user> and <prefix>:usage:<user>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore dials Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr cannot be empty")
	}
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisConfig().KeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) creditsKey(user string) string { return s.prefix + ":credits:" + user }
func (s *RedisStore) usageKey(user string) string   { return s.prefix + ":usage:" + user }

func (s *RedisStore) LoadAccount(ctx context.Context, user string) (Account, bool, error) {
	acct := Account{User: user}
	data, err := s.client.Get(ctx, s.creditsKey(user)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return acct, false, nil
		}
		return acct, false, fmt.Errorf("redis get credits failed: %w", err)
	}
	if err := json.Unmarshal(data, &acct); err != nil {
		return Account{User: user}, false, fmt.Errorf("parse credits failed: %w", err)
	}
	acct.User = user
	return acct, true, nil
}

func (s *RedisStore) SaveAccount(ctx context.Context, acct Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal credits failed: %w", err)
	}
	if err := s.client.Set(ctx, s.creditsKey(acct.User), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set credits failed: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadUsage(ctx context.Context, user string) ([]UsageRecord, error) {
	data, err := s.client.Get(ctx, s.usageKey(user)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get usage failed: %w", err)
	}
	var records []UsageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse usage failed: %w", err)
	}
	return records, nil
}

func (s *RedisStore) SaveUsage(ctx context.Context, user string, records []UsageRecord) error {
	if records == nil {
		records = []UsageRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal usage failed: %w", err)
	}
	if err := s.client.Set(ctx, s.usageKey(user), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set usage failed: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteUsage(ctx context.Context, user string) error {
	if err := s.client.Del(ctx, s.usageKey(user)).Err(); err != nil {
		return fmt.Errorf("redis del usage failed: %w", err)
	}
	return nil
}
