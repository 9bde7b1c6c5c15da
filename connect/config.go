package connect

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tarmac-project/kvbridge"
	"github.com/tarmac-project/kvbridge/logging"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendTarmac = "tarmac"
)

// Config holds everything Open needs. Fields tagged "-" are injected by the
// caller and never read from a file.
type Config struct {
	Backend   string       `json:"backend"`
	Workers   int          `json:"workers,omitempty"`
	Deferred  bool         `json:"deferred,omitempty"`
	LogLevel  string       `json:"log_level,omitempty"`
	Namespace string       `json:"namespace,omitempty"`
	Loop      LoopConfig   `json:"loop"`
	Badger    BadgerConfig `json:"badger"`
	Redis     RedisConfig  `json:"redis"`

	// Logger replaces the slog logger built from LogLevel.
	Logger logging.Client `json:"-"`

	// HostCall overrides the waPC host function of the tarmac backend.
	HostCall kvbridge.HostCall `json:"-"`

	// RedisClient is used by the redis backend instead of dialing Redis.Addr.
	RedisClient *redis.Client `json:"-"`
}

// LoopConfig tunes the host loop's idle backoff.
type LoopConfig struct {
	IdleInterval    Duration `json:"idle_interval,omitempty"`
	MaxIdleInterval Duration `json:"max_idle_interval,omitempty"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Dir                string   `json:"dir,omitempty"`
	InMemory           bool     `json:"in_memory,omitempty"`
	ValueLogGCInterval Duration `json:"value_log_gc_interval,omitempty"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string   `json:"addr,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
	CacheSize int64    `json:"cache_size,omitempty"`
	CacheTTL  Duration `json:"cache_ttl,omitempty"`
}

// Duration is a time.Duration written as a string such as "250ms" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns an in-memory configuration logging at info level.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendMemory,
		LogLevel:  "info",
		Namespace: kvbridge.DefaultNamespace,
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: Duration(time.Second),
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Workers > 0 {
		c.Workers = source.Workers
	}
	if source.Deferred {
		c.Deferred = true
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.Namespace != "" {
		c.Namespace = source.Namespace
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
	if source.HostCall != nil {
		c.HostCall = source.HostCall
	}
	if source.RedisClient != nil {
		c.RedisClient = source.RedisClient
	}

	c.Loop.Merge(&source.Loop)
	c.Badger.Merge(&source.Badger)
	c.Redis.Merge(&source.Redis)
}

// Merge applies non-zero values from source into c.
func (c *LoopConfig) Merge(source *LoopConfig) {
	if source.IdleInterval > 0 {
		c.IdleInterval = source.IdleInterval
	}
	if source.MaxIdleInterval > 0 {
		c.MaxIdleInterval = source.MaxIdleInterval
	}
}

// Merge applies non-zero values from source into c.
func (c *BadgerConfig) Merge(source *BadgerConfig) {
	if source.Dir != "" {
		c.Dir = source.Dir
	}
	if source.InMemory {
		c.InMemory = true
	}
	if source.ValueLogGCInterval > 0 {
		c.ValueLogGCInterval = source.ValueLogGCInterval
	}
}

// Merge applies non-zero values from source into c.
func (c *RedisConfig) Merge(source *RedisConfig) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.Namespace != "" {
		c.Namespace = source.Namespace
	}
	if source.CacheSize > 0 {
		c.CacheSize = source.CacheSize
	}
	if source.CacheTTL > 0 {
		c.CacheTTL = source.CacheTTL
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
