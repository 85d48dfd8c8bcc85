package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-strm/ratelimit"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns the stores that share one database handle.
type RepositoryFactory struct {
	db         *bun.DB
	attempts   *DeliveryAttemptStore
	rateLimits *RateLimitStateStore
	throttle   ratelimit.StateStore
}

type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	rateLimitCache repositorycache.CacheService
}

// WithRateLimitCache fronts the rate-limit state store with cache.
func WithRateLimitCache(cache repositorycache.CacheService) FactoryOption {
	return func(o *factoryOptions) {
		o.rateLimitCache = cache
	}
}

// NewRepositoryFactory accepts a *bun.DB or anything exposing DB() *bun.DB,
// such as *persistence.Client.
func NewRepositoryFactory(handle any, opts ...FactoryOption) (*RepositoryFactory, error) {
	db, err := resolveBunDB(handle)
	if err != nil {
		return nil, err
	}
	options := factoryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	attempts, err := NewDeliveryAttemptStore(db)
	if err != nil {
		return nil, err
	}
	rateLimits, err := NewRateLimitStateStore(db)
	if err != nil {
		return nil, err
	}
	factory := &RepositoryFactory{
		db:         db,
		attempts:   attempts,
		rateLimits: rateLimits,
		throttle:   rateLimits,
	}
	if options.rateLimitCache != nil {
		cached, err := NewCachedRateLimitStateStore(rateLimits, options.rateLimitCache)
		if err != nil {
			return nil, err
		}
		factory.throttle = cached
	}
	return factory, nil
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactory(client, opts...)
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) DeliveryAttemptStore() *DeliveryAttemptStore {
	if f == nil {
		return nil
	}
	return f.attempts
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimits
}

// ThrottleStore is the state store an AdaptivePolicy should use: the cached
// store when WithRateLimitCache was given, the table store otherwise.
func (f *RepositoryFactory) ThrottleStore() ratelimit.StateStore {
	if f == nil {
		return nil
	}
	return f.throttle
}

func resolveBunDB(handle any) (*bun.DB, error) {
	switch typed := handle.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: database handle is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: database handle is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		if db := typed.DB(); db != nil {
			return db, nil
		}
		return nil, fmt.Errorf("sqlstore: %T returned a nil bun db", handle)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database handle %T", handle)
	}
}
