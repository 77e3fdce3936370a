package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxPresignExpiry is the longest validity SigV4 presigned URLs accept.
const MaxPresignExpiry = 7 * 24 * time.Hour

// NewS3Client creates a new S3 client from AWS config. Path style addressing
// is enabled when a custom endpoint (LocalStack, MinIO) is configured.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	})
}

// Presigner issues time-limited GET URLs for objects in a single bucket.
type Presigner struct {
	client *s3.PresignClient
	bucket string
}

func NewPresigner(client *s3.Client, bucket string) *Presigner {
	return &Presigner{client: s3.NewPresignClient(client), bucket: bucket}
}

// PresignGet returns a presigned GET URL for key valid for ttl.
func (p *Presigner) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	if ttl <= 0 || ttl > MaxPresignExpiry {
		ttl = MaxPresignExpiry
	}

	presigned, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &p.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object %s: %w", key, err)
	}
	return presigned.URL, nil
}
