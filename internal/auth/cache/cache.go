// Package cache provides the byte cache behind the client lookup cache,
// with in-process and Redis backends.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque values. A miss is (nil, false, nil); errors are
// reserved for backend failures so callers can fall back to the source.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	TTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New builds the backend named by cfg.Driver. An empty driver means
// memory.
func New(cfg Config) (Cache, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		r, err := NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) Close() error                                             { return nil }
