// Package cache holds the redis-backed read-through cache for organization lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

const (
	defaultOrganizationTTL = time.Minute
	invalidateTimeout      = 2 * time.Second
)

// OrganizationCache decorates an OrganizationRepo with a redis read-through
// cache. Only found organizations are cached, so a practice created after a
// miss is visible on the next lookup. Redis failures fall back to the
// underlying repository.
//
// A status or deletion change is seen as soon as its change notice arrives
// (see ListenForChanges) and at the latest after ttl when a notice is lost.
type OrganizationCache struct {
	next   storage.OrganizationRepo
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ storage.OrganizationRepo = (*OrganizationCache)(nil)

// NewOrganizationCache wraps next. A non-positive ttl uses the default.
func NewOrganizationCache(next storage.OrganizationRepo, client redis.UniversalClient, ttl time.Duration, prefix string) *OrganizationCache {
	if ttl <= 0 {
		ttl = defaultOrganizationTTL
	}
	return &OrganizationCache{next: next, client: client, ttl: ttl, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", apperrors.ErrCache, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", apperrors.ErrCache, err)
	}
	return client, nil
}

func (c *OrganizationCache) key(id string) string {
	if c.prefix == "" {
		return "organization:" + id
	}
	return c.prefix + ":organization:" + id
}

// FindByID serves the organization from redis when present, otherwise loads
// it from the repository and stores it for ttl.
func (c *OrganizationCache) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	log := logger.FromContext(ctx)

	org, err := c.get(ctx, id)
	switch {
	case err == nil && org != nil:
		observer.IncOrganizationCache("hit")
		return org, nil
	case err != nil:
		observer.IncOrganizationCache("error")
		log.Warn("Organization cache read failed, using database", zap.String("organization_id", id), zap.Error(err))
	default:
		observer.IncOrganizationCache("miss")
	}

	org, err = c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, org); err != nil {
		log.Warn("Organization cache write failed", zap.String("organization_id", id), zap.Error(err))
	}
	return org, nil
}

// Subscriber receives broker messages on a subject.
type Subscriber interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// ListenForChanges evicts an organization whenever a change notice is
// published for it. The organization id is the last token of the notice
// subject (e.g. v1.organizations.changed.<id>); the body is ignored.
func (c *OrganizationCache) ListenForChanges(sub Subscriber, subject string) (*nats.Subscription, error) {
	s, err := sub.Subscribe(subject, c.handleChange)
	if err != nil {
		return nil, fmt.Errorf("%w: listen for organization changes: %w", apperrors.ErrCache, err)
	}
	return s, nil
}

func (c *OrganizationCache) handleChange(msg *nats.Msg) {
	id := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
	if id == "" || id == "*" || id == ">" {
		logger.Log.Warn("Organization change notice without id", zap.String("subject", msg.Subject))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := c.Invalidate(ctx, id); err != nil {
		observer.IncOrganizationCache("error")
		logger.Log.Warn("Organization cache eviction failed", zap.String("organization_id", id), zap.Error(err))
		return
	}
	observer.IncOrganizationCache("evicted")
	logger.Log.Debug("Organization evicted from cache", zap.String("organization_id", id))
}

// Invalidate drops a cached organization.
func (c *OrganizationCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", apperrors.ErrCache, id, err)
	}
	return nil
}

func (c *OrganizationCache) get(ctx context.Context, id string) (*model.Organization, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", apperrors.ErrCache, id, err)
	}

	var org model.Organization
	if err := json.Unmarshal(raw, &org); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", apperrors.ErrCache, id, err)
	}
	return &org, nil
}

func (c *OrganizationCache) set(ctx context.Context, org *model.Organization) error {
	raw, err := json.Marshal(org)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", apperrors.ErrCache, org.ID, err)
	}
	if err := c.client.Set(ctx, c.key(org.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", apperrors.ErrCache, org.ID, err)
	}
	return nil
}
