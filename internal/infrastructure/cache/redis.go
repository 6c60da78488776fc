package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/interfaces"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// cacheClient is the subset of *redis.Client the cache needs.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RuleCache serves rules from Redis and falls back to the wrapped source on
// a miss or any Redis failure.
type RuleCache struct {
	inner  interfaces.RuleSource
	client cacheClient
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRuleCache(inner interfaces.RuleSource, client cacheClient, ttl time.Duration, logger zerolog.Logger) *RuleCache {
	return &RuleCache{inner: inner, client: client, ttl: ttl, log: logger}
}

// NewRedisClient builds the client used in production.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Key identifies a query. The effective-window filter is applied after the
// cache so time is not part of the key.
func Key(q domain.RuleQuery) string {
	return fmt.Sprintf("pricing_rules:%s:%s:%s:%s:%s",
		q.Version, keyPart(q.SellerID), keyPart(q.SiteID), keyPart(q.CategoryID), keyPart(q.BrandID))
}

func keyPart(s string) string {
	if s == "" {
		return "*"
	}
	return strings.ReplaceAll(s, ":", "_")
}

func (c *RuleCache) Rules(ctx context.Context, q domain.RuleQuery) ([]engine.PricingRule, error) {
	key := Key(q)

	data, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var rules []engine.PricingRule
		jerr := json.Unmarshal([]byte(data), &rules)
		if jerr == nil {
			return inWindow(rules, q.At), nil
		}
		c.log.Warn().Err(jerr).Str("key", key).Msg("discarding unreadable cached rules")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("rule cache unavailable")
	}

	// Cache every window of the scope; filter by time on the way out.
	unwindowed := q
	unwindowed.At = time.Time{}
	rules, err := c.inner.Rules(ctx, unwindowed)
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(rules); merr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.log.Warn().Err(serr).Str("key", key).Msg("could not cache rules")
		}
	}
	return inWindow(rules, q.At), nil
}

// inWindow keeps the rules in effect at at. Scope is already part of the key
// and was applied by the inner source.
func inWindow(rules []engine.PricingRule, at time.Time) []engine.PricingRule {
	if at.IsZero() {
		return rules
	}
	out := make([]engine.PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.InEffect(at) {
			out = append(out, r)
		}
	}
	return out
}
