package cache

import (
	"time"

	"github.com/creasty/defaults"
)

// RedisConfig is the connection and keyspace of RedisCache. Zero fields
// take the default tag.
type RedisConfig struct {
	Addr         string        `default:"localhost:6379"`
	Password     string
	DB           int
	PoolSize     int           `default:"10"`
	MinIdleConns int           `default:"2"`
	PoolTimeout  time.Duration `default:"30s"`
	PingTimeout  time.Duration `default:"5s"`
	// Prefix namespaces every key as "<prefix>:<key>".
	Prefix string `default:"socpulse"`
}

// MemoryConfig sizes MemoryCache.
type MemoryConfig struct {
	MaxSize    int           `default:"1000"`
	Sweep      time.Duration `default:"5m"`
	DefaultTTL time.Duration `default:"168h"`
}

// LayeredConfig sizes the process-local tier of LayeredCache.
type LayeredConfig struct {
	L1Size int           `default:"1000"`
	L1TTL  time.Duration `default:"5m"`
}

func withDefaults[T any](cfg T) T {
	_ = defaults.Set(&cfg)
	return cfg
}
