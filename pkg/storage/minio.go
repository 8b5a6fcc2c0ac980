// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保图片与文档存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	for _, bucketName := range []string{cfg.ImageBucket, cfg.DocumentBucket} {
		if bucketName == "" {
			continue
		}
		if err := ensureBucket(ctx, bucketName); err != nil {
			log.Fatal("检查 MinIO 存储桶失败", err)
		}
	}
}

func ensureBucket(ctx context.Context, bucketName string) error {
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", bucketName)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
	if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return err
	}
	log.Infof("存储桶 '%s' 创建成功", bucketName)
	return nil
}

// GetPresignedURL generates a presigned URL for a given object.
func GetPresignedURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(ctx, bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}

// GetObjectBytes 读取对象内容，超过 maxBytes 时返回错误。
func GetObjectBytes(ctx context.Context, bucketName, objectName string, maxBytes int64) ([]byte, error) {
	obj, err := MinioClient.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucketName, objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucketName, objectName, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object %s/%s exceeds %d bytes", bucketName, objectName, maxBytes)
	}
	return data, nil
}

// PutObjectBytes 上传一段内存中的内容。
func PutObjectBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// ObjectFromURL 判断一个公开 URL 是否指向配置的 MinIO，是则解析出 bucket 与 object。
// 同时支持 public_base_url 前缀与 endpoint 主机两种形式。
func ObjectFromURL(cfg config.MinIOConfig, rawURL string) (bucket, object string, ok bool) {
	var rest string
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	switch {
	case base != "" && strings.HasPrefix(rawURL, base+"/"):
		rest = strings.TrimPrefix(rawURL, base+"/")
	default:
		u, err := url.Parse(rawURL)
		if err != nil || cfg.Endpoint == "" || u.Host != cfg.Endpoint {
			return "", "", false
		}
		rest = strings.TrimPrefix(u.Path, "/")
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	object, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", false
	}
	return parts[0], object, true
}
