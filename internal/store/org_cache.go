package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"

	"go.uber.org/zap"
)

const (
	orgSnapshotKey = "drmp:orgs:snapshot"
	orgKeyPrefix   = "drmp:org:"
	orgKeysPattern = "drmp:org:*"
)

// OrganizationCache 机构快照读缓存；缓存故障时直接回源
type OrganizationCache struct {
	source repository.OrganizationsRepository
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

// NewOrganizationCache 创建机构缓存；ttl <= 0 时不缓存
func NewOrganizationCache(source repository.OrganizationsRepository, kv KV, ttl time.Duration, logger *zap.Logger) *OrganizationCache {
	return &OrganizationCache{source: source, kv: kv, ttl: ttl, logger: logger}
}

var _ repository.OrganizationsRepository = (*OrganizationCache)(nil)

// ListOrganizations 优先读缓存快照
func (c *OrganizationCache) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	if c.ttl <= 0 {
		return c.source.ListOrganizations(ctx)
	}

	var orgs []domain.Organization
	if c.read(ctx, orgSnapshotKey, &orgs) {
		return orgs, nil
	}

	orgs, err := c.source.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	c.write(ctx, orgSnapshotKey, orgs)
	return orgs, nil
}

// GetOrganization 优先读单机构缓存
func (c *OrganizationCache) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if c.ttl <= 0 {
		return c.source.GetOrganization(ctx, orgID)
	}

	key := orgKeyPrefix + orgID
	var org domain.Organization
	if c.read(ctx, key, &org) {
		return &org, nil
	}

	got, err := c.source.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

// Invalidate 清除全部机构缓存（机构负载变化后调用）
func (c *OrganizationCache) Invalidate(ctx context.Context) error {
	keys, err := c.kv.ScanKeys(ctx, orgKeysPattern)
	if err != nil {
		return err
	}
	return c.kv.Delete(ctx, append(keys, orgSnapshotKey)...)
}

func (c *OrganizationCache) read(ctx context.Context, key string, dst any) bool {
	val, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Organization cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.logger.Warn("Organization cache entry corrupted", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *OrganizationCache) write(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Failed to encode organization cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.kv.Set(ctx, key, string(b), c.ttl); err != nil {
		c.logger.Warn("Organization cache write failed", zap.String("key", key), zap.Error(err))
	}
}
