// Package archive stores written mission files in an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

const contentType = "text/plain; charset=utf-8"

// Archive is where mission files are kept.
type Archive interface {
	// CheckBucket makes sure the bucket exists.
	CheckBucket(ctx context.Context) error

	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte) error

	// URL returns a temporary download link for key.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ObjectKey names an archived mission: {role}/{20060102T150405Z}-{file}.
func ObjectKey(role, file string, at time.Time) string {
	return path.Join(role, at.UTC().Format("20060102T150405Z")+"-"+path.Base(strings.ReplaceAll(file, `\`, "/")))
}

// MinIO is an Archive on any S3-compatible store.
type MinIO struct {
	client     *minio.Client
	bucketName string
}

var _ Archive = (*MinIO)(nil)

func NewMinIO(opts *options.S3Options) (*MinIO, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIO{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

func (p *MinIO) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (p *MinIO) Put(ctx context.Context, key string, data []byte) error {
	info, err := p.client.PutObject(ctx, p.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Info("Mission archived", "bucket", p.bucketName, "key", key, "etag", info.ETag)
	return nil
}

func (p *MinIO) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucketName, key, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return u.String(), nil
}
