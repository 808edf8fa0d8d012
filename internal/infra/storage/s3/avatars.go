package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AvatarResolver turns stored avatar object keys into fetchable URLs for the
// conversation directory. Uploads are handled by the profile service.
type AvatarResolver interface {
	AvatarURL(ctx context.Context, key string) (string, error)
}

// Client presigns GET URLs against an S3-compatible bucket.
type Client struct {
	bucket string
	expiry time.Duration
	client *minio.Client
	logger *slog.Logger
}

// NewClient configures a resolver for the given endpoint and credentials.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey, bucket string, expiry time.Duration, logger *slog.Logger) (*Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if expiry <= 0 {
		expiry = time.Hour
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	return &Client{
		bucket: bucket,
		expiry: expiry,
		client: minioClient,
		logger: logger,
	}, nil
}

// AvatarURL returns a presigned GET URL for the object key, empty when the
// user has no avatar.
func (c *Client) AvatarURL(ctx context.Context, key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", nil
	}
	presigned, err := c.client.PresignedGetObject(ctx, c.bucket, key, c.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("s3: presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

func parseEndpoint(raw string) string {
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return raw
}

var _ AvatarResolver = (*Client)(nil)
