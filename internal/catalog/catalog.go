// Package catalog serves the support services and their FAQs through a
// read-through cache in front of the message store.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
)

// Defaults.
const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "supportchat:catalog"

	// loadTimeout bounds a shared source fetch.
	loadTimeout = 30 * time.Second
)

// Source is where catalogue data lives.
type Source interface {
	Services(ctx context.Context) ([]models.Service, error)
	Service(ctx context.Context, id string) (*models.Service, error)
	FAQs(ctx context.Context, serviceID string) ([]models.FAQ, error)
}

// Opts holds parameters for creating a Catalog.
type Opts struct {
	Source  Source
	Cache   Cache         // default NewMemoryCache()
	TTL     time.Duration // default DefaultTTL
	Prefix  string        // key prefix, default DefaultPrefix
	Refresh string        // 5-field cron expression; empty disables Run
}

// Catalog is safe for concurrent use.
type Catalog struct {
	src     Source
	cache   Cache
	ttl     time.Duration
	prefix  string
	refresh string
	sf      singleflight.Group
}

// New creates a Catalog.
func New(opts Opts) (*Catalog, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("catalog: source is required")
	}
	if opts.Refresh != "" {
		if _, err := cronParser.Parse(opts.Refresh); err != nil {
			return nil, fmt.Errorf("catalog: refresh schedule %q: %w", opts.Refresh, err)
		}
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Catalog{
		src:     opts.Source,
		cache:   opts.Cache,
		ttl:     opts.TTL,
		prefix:  opts.Prefix,
		refresh: opts.Refresh,
	}, nil
}

func (c *Catalog) servicesKey() string         { return c.prefix + ":services" }
func (c *Catalog) serviceKey(id string) string { return c.prefix + ":service:" + id }
func (c *Catalog) faqsKey(id string) string    { return c.prefix + ":faqs:" + id }

// Services lists all services.
func (c *Catalog) Services(ctx context.Context) ([]models.Service, error) {
	return load(ctx, c, c.servicesKey(), c.src.Services)
}

// Service returns one service with documents and FAQs.
func (c *Catalog) Service(ctx context.Context, id string) (*models.Service, error) {
	return load(ctx, c, c.serviceKey(id), func(ctx context.Context) (*models.Service, error) {
		return c.src.Service(ctx, id)
	})
}

// FAQs returns the FAQs of a service.
func (c *Catalog) FAQs(ctx context.Context, serviceID string) ([]models.FAQ, error) {
	return load(ctx, c, c.faqsKey(serviceID), func(ctx context.Context) ([]models.FAQ, error) {
		return c.src.FAQs(ctx, serviceID)
	})
}

// Refresh re-reads the service list from the source and replaces the cached
// copy. Per-service entries are dropped so they reload on next use.
func (c *Catalog) Refresh(ctx context.Context) error {
	svcs, err := c.src.Services(ctx)
	if err != nil {
		return fmt.Errorf("catalog: refresh: %w", err)
	}
	c.store(ctx, c.servicesKey(), svcs)

	keys := make([]string, 0, 2*len(svcs))
	for _, s := range svcs {
		keys = append(keys, c.serviceKey(s.ID), c.faqsKey(s.ID))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Msg("catalog: drop stale entries")
	}
	return nil
}

// Run refreshes the catalogue on the configured cron schedule until ctx is
// cancelled. It returns immediately when no schedule is set.
func (c *Catalog) Run(ctx context.Context) {
	if c.refresh == "" {
		return
	}
	log := logging.Ctx(ctx).With().Str(logging.FieldComponent, "catalog").Logger()

	d := nextCronDuration(c.refresh)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := c.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled refresh failed")
			} else {
				log.Debug().Msg("catalogue refreshed")
			}
			if d := nextCronDuration(c.refresh); d > 0 {
				timer.Reset(d)
			}
		}
	}
}

// Close releases the cache backend.
func (c *Catalog) Close() error {
	return c.cache.Close()
}

// load reads key from the cache, falling back to fetch on a miss. Concurrent
// misses for the same key share one fetch, which runs detached from any
// single caller's cancellation; each caller stops waiting when its own ctx
// ends. Cache failures are logged and never fail the read.
func load[T any](ctx context.Context, c *Catalog, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	ch := c.sf.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		data, err := c.cache.Get(lctx, key)
		if err == nil {
			var cached T
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			l := logging.Ctx(ctx)
			l.Warn().Str("key", key).Msg("catalog: discarding undecodable cache entry")
		} else if !errors.Is(err, ErrCacheMiss) {
			l := logging.Ctx(ctx)
			l.Warn().Err(err).Msg("catalog: cache get error")
		}

		fresh, err := fetch(lctx)
		if err != nil {
			return nil, err
		}
		c.store(lctx, key, fresh)
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("catalog: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("catalog: %w", res.Err)
		}
		return res.Val.(T), nil
	}
}

func (c *Catalog) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Msg("catalog: encode cache entry")
		return
	}
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.cache.Set(setCtx, key, data, c.ttl); err != nil {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Msg("catalog: cache set error")
	}
}
