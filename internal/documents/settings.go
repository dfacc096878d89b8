package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PrefixResolver resolves the numbering prefix for a business and family.
// Businesses may override the default per family via numbering_settings; the
// override is cached in redis with a short TTL, the DB row stays authoritative.
type PrefixResolver struct {
	store  Store
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPrefixResolver builds a resolver. cache may be nil, which disables caching.
func NewPrefixResolver(store Store, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *PrefixResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrefixResolver{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Prefix returns the configured prefix for the family, or the default
// `{FAMILY}-{year}-` derived from the issue date. Lookup failures degrade to
// the default so numbering stays available.
func (p *PrefixResolver) Prefix(ctx context.Context, businessID int64, family Family, issueDate time.Time) string {
	key := prefixCacheKey(businessID, family)

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, key).Result()
		if err == nil && cached != "" {
			return cached
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			p.logger.Warn("prefix cache read", slog.Any("error", err))
		}
	}

	prefix, err := p.store.GetNumberingPrefix(ctx, businessID, family)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn("prefix lookup",
				slog.Int64("business_id", businessID),
				slog.String("family", string(family)),
				slog.Any("error", err))
		}
		return DefaultPrefix(family, issueDate)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, prefix, p.ttl).Err(); err != nil {
			p.logger.Warn("prefix cache write", slog.Any("error", err))
		}
	}
	return prefix
}

// Invalidate drops the cached prefix after a settings change.
func (p *PrefixResolver) Invalidate(ctx context.Context, businessID int64, family Family) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, prefixCacheKey(businessID, family)).Err(); err != nil {
		p.logger.Warn("prefix cache invalidate", slog.Any("error", err))
	}
}

// DefaultPrefix embeds the issue year, e.g. INV-2025-.
func DefaultPrefix(family Family, issueDate time.Time) string {
	return fmt.Sprintf("%s-%d-", family, issueDate.Year())
}

func prefixCacheKey(businessID int64, family Family) string {
	return fmt.Sprintf("numbering:prefix:%d:%s", businessID, family)
}
