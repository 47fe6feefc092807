// Package catalog answers whether a gateway product reference belongs to
// something sold through this service.  The webhook reconciler asks it
// first so unrelated gateway traffic is dropped before any user or
// payment lookup.
package catalog

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/config"
)

// Error is the error class for catalog failures.
var Error = errs.Class("catalog")

// Source lists product references from one table.
type Source interface {
	ProductRefs(ctx context.Context) ([]string, error)
}

// emptyMarker keeps an empty catalog cached instead of reloading it on
// every lookup.  No real reference can equal it.
const emptyMarker = "\x00"

// Catalog is the known product reference set, optionally mirrored in
// Redis.
type Catalog struct {
	log     *zap.Logger
	cfg     config.CatalogCacheConfig
	rdb     *redis.Client
	sources []Source
}

// New returns a Catalog reading from sources.  rdb may be nil.
func New(log *zap.Logger, cfg config.CatalogCacheConfig, rdb *redis.Client, sources ...Source) *Catalog {
	return &Catalog{log: log, cfg: cfg, rdb: rdb, sources: sources}
}

func (c *Catalog) cached() bool { return c.cfg.Enabled && c.rdb != nil }

// Known returns the full reference set.
func (c *Catalog) Known(ctx context.Context) (map[string]struct{}, error) {
	known, _, err := c.known(ctx)
	return known, err
}

// known serves the set from Redis when it can.  fromCache reports whether
// the set may be stale.
func (c *Catalog) known(ctx context.Context) (known map[string]struct{}, fromCache bool, err error) {
	if c.cached() {
		members, err := c.rdb.SMembers(ctx, c.cfg.Key).Result()
		if err == nil && len(members) > 0 {
			return toSet(members), true, nil
		}
		if err != nil {
			c.log.Warn("catalog cache read failed", zap.Error(err))
		}
	}
	known, err = c.reload(ctx)
	return known, false, err
}

func (c *Catalog) reload(ctx context.Context) (map[string]struct{}, error) {
	refs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if c.cached() {
		c.store(ctx, refs)
	}
	return toSet(refs), nil
}

// Filter returns the references in refs that the catalog knows, in the
// order given.  A cached set that misses any of refs is reloaded from the
// sources first, so products added since the cache was filled are found.
func (c *Catalog) Filter(ctx context.Context, refs []string) ([]string, error) {
	known, fromCache, err := c.known(ctx)
	if err != nil {
		return nil, err
	}
	out := intersect(known, refs)
	if fromCache && len(out) < len(refs) {
		if known, err = c.reload(ctx); err != nil {
			return nil, err
		}
		out = intersect(known, refs)
	}
	return out, nil
}

func intersect(known map[string]struct{}, refs []string) []string {
	var out []string
	for _, ref := range refs {
		if _, ok := known[ref]; ok {
			out = append(out, ref)
		}
	}
	return out
}

// Invalidate drops the cached set so the next lookup reloads it.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if !c.cached() {
		return nil
	}
	return Error.Wrap(c.rdb.Del(ctx, c.cfg.Key).Err())
}

func (c *Catalog) load(ctx context.Context) ([]string, error) {
	var refs []string
	for _, src := range c.sources {
		r, err := src.ProductRefs(ctx)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		refs = append(refs, r...)
	}
	return refs, nil
}

func (c *Catalog) store(ctx context.Context, refs []string) {
	members := make([]any, 0, len(refs)+1)
	members = append(members, emptyMarker)
	for _, r := range refs {
		members = append(members, r)
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.cfg.Key)
		p.SAdd(ctx, c.cfg.Key, members...)
		p.Expire(ctx, c.cfg.Key, c.cfg.TTL)
		return nil
	})
	if err != nil {
		c.log.Warn("catalog cache write failed", zap.Error(err))
	}
}

func toSet(refs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if r != emptyMarker {
			set[r] = struct{}{}
		}
	}
	return set
}
