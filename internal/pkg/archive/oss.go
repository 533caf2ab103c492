package archive

import (
	"bytes"
	"context"
	"fmt"

	"order_payment_service/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// Store 对象存储
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type OSSStore struct {
	bucket *oss.Bucket
	config config.OSSConfig
}

func NewOSSStore(cfg config.OSSConfig) (*OSSStore, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss config is missing")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}
	return &OSSStore{bucket: bucket, config: cfg}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bucket.PutObject(key, bytes.NewReader(body), oss.ContentType(contentType))
}

// NopStore 未配置 OSS 时使用
type NopStore struct{}

func (NopStore) Put(context.Context, string, []byte, string) error { return nil }
