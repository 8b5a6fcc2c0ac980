package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// VisionCache 缓存查询时的图像分析结果，键由图片 URL、问题与语言共同决定。
type VisionCache interface {
	Get(ctx context.Context, imageURL, query, language string) (string, bool, error)
	Set(ctx context.Context, imageURL, query, language, analysis string) error
}

type redisVisionCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewVisionCache 创建基于 Redis 的 VisionCache。
func NewVisionCache(redisClient *redis.Client, ttl time.Duration) VisionCache {
	return &redisVisionCache{redisClient: redisClient, ttl: ttl}
}

// VisionCacheKey 返回缓存键 vision:<sha1(url \x00 query \x00 language)>。
func VisionCacheKey(imageURL, query, language string) string {
	sum := sha1.Sum([]byte(imageURL + "\x00" + query + "\x00" + language))
	return "vision:" + hex.EncodeToString(sum[:])
}

func (c *redisVisionCache) Get(ctx context.Context, imageURL, query, language string) (string, bool, error) {
	val, err := c.redisClient.Get(ctx, VisionCacheKey(imageURL, query, language)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisVisionCache) Set(ctx context.Context, imageURL, query, language, analysis string) error {
	return c.redisClient.Set(ctx, VisionCacheKey(imageURL, query, language), analysis, c.ttl).Err()
}
