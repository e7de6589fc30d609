package objstore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type minioClient struct {
	client *minio.Client
	bucket string
}

// NewMinio builds a store on minio-go. Endpoint is a host[:port], not a URL.
func NewMinio(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return newStore(&minioClient{client: client, bucket: cfg.Bucket}, cfg.Prefix), nil
}

func (c *minioClient) StatObject(ctx context.Context, key string) (map[string]string, bool, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, err
	}
	return info.UserMetadata, true, nil
}

func (c *minioClient) PutObject(ctx context.Context, key string, body io.Reader, size int64, meta map[string]string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		UserMetadata: meta,
	})
	return err
}
