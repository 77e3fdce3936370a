package storage

import (
	"context"
	"errors"
	"time"

	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
)

// Signer issues time-limited download URLs for object keys.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// S3Signer serves signed URLs from the delivery bucket.
type S3Signer struct {
	presigner *awspkg.Presigner
}

func NewS3Signer(presigner *awspkg.Presigner) *S3Signer {
	return &S3Signer{presigner: presigner}
}

func (s *S3Signer) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.presigner.PresignGet(ctx, key, ttl)
}

var ErrSignerUnavailable = errors.New("object store not configured")

// Unavailable fails every request; deliveries fall back to per-item failure.
type Unavailable struct{}

func (Unavailable) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrSignerUnavailable
}
