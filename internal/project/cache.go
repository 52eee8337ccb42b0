package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "pvboard:project:"

// CachedRepository is a read-through Redis cache in front of another
// Repository. Only GetByID is cached; every write touching a project drops
// its entry. Redis failures degrade to the wrapped repository.
type CachedRepository struct {
	Repository
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCachedRepository wraps repo with a Redis cache whose entries live for ttl.
func NewCachedRepository(repo Repository, rdb redis.Cmdable, ttl time.Duration) *CachedRepository {
	return &CachedRepository{Repository: repo, rdb: rdb, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return cacheKeyPrefix + id.String()
}

// GetByID serves the project from Redis when present, otherwise loads it and
// populates the cache.
func (c *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var p Project
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		slog.Warn("discarding unreadable cached project", "projectId", id)
	case !errors.Is(err, redis.Nil):
		slog.Warn("project cache read failed", "projectId", id, "error", err)
	}

	p, err := c.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(id), encoded, c.ttl).Err(); err != nil {
			slog.Warn("project cache write failed", "projectId", id, "error", err)
		}
	}
	return p, nil
}

// Delete removes the project and its cache entry.
func (c *CachedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.Repository.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// AddMember attaches a member and drops the cached project.
func (c *CachedRepository) AddMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	if err := c.Repository.AddMember(ctx, projectID, memberID); err != nil {
		return err
	}
	c.invalidate(ctx, projectID)
	return nil
}

// RemoveMember detaches a member and drops the cached project.
func (c *CachedRepository) RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	if err := c.Repository.RemoveMember(ctx, projectID, memberID); err != nil {
		return err
	}
	c.invalidate(ctx, projectID)
	return nil
}

func (c *CachedRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		slog.Warn("project cache invalidation failed", "projectId", id, "error", err)
	}
}

// Ping reports whether Redis is reachable.
func (c *CachedRepository) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}
