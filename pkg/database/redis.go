package database

import (
	"context"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 缓存图像分析结果与 Kafka 重试计数，未初始化时为 nil。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端。Redis 不可用时记录警告并保持 RDB 为 nil，
// 依赖它的缓存与重试计数随之降级。
func InitRedis(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis 连接失败, 图像分析缓存已禁用: %v", err)
		_ = client.Close()
		return nil
	}

	RDB = client
	log.Infof("Redis 连接成功: %s", cfg.Addr)
	return RDB
}
