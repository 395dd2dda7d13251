// Package objectstore resolves photo file ids to fetchable URLs. Photos
// uploaded through the mini app live in an S3-compatible bucket and are
// served via presigned GETs; everything else falls back to the platform's
// file download URL.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// DefaultURLTTL is how long presigned URLs stay valid. Long enough to cover
// queue wait plus the model call, short enough to limit leaked-URL exposure.
const DefaultURLTTL = 15 * time.Minute

// presignAPI is the slice of the S3 presign client the store uses.
type presignAPI interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store issues presigned URLs against the photo bucket.
type Store struct {
	presign presignAPI
	bucket  string
	urlTTL  time.Duration
	logger  *slog.Logger
}

// NewStore builds a store from the object store configuration. Returns nil
// when no endpoint is configured; callers treat a nil store as "bucket
// storage disabled" and use the platform fallback only.
func NewStore(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	if cfg.EndpointURL == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = true
	})

	return &Store{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		urlTTL:  DefaultURLTTL,
		logger:  slog.Default().With("component", "objectstore"),
	}, nil
}

// NewStoreWithPresigner wires a pre-built presign client (tests).
func NewStoreWithPresigner(presign presignAPI, bucket string) *Store {
	return &Store{
		presign: presign,
		bucket:  bucket,
		urlTTL:  DefaultURLTTL,
		logger:  slog.Default().With("component", "objectstore"),
	}
}

// PresignGet returns a time-limited download URL for a stored photo.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("presigning GET for %s: %w", key, err)
	}
	return req.URL, nil
}

// bucketKeyPrefix marks file ids that reference bucket objects rather than
// platform file ids.
const bucketKeyPrefix = "s3:"

// fileURLGetter resolves a platform file id to a download URL.
type fileURLGetter interface {
	GetFileURL(ctx context.Context, fileID string) (string, error)
}

// Resolver maps job photo file ids to URLs: bucket keys go through presigned
// GETs, platform file ids through the bot file API.
type Resolver struct {
	store    *Store
	platform fileURLGetter
}

// NewResolver creates a resolver. store may be nil (bucket storage disabled).
func NewResolver(store *Store, platform fileURLGetter) *Resolver {
	return &Resolver{store: store, platform: platform}
}

// ResolvePhotoURL returns a fetchable URL for a photo file id.
func (r *Resolver) ResolvePhotoURL(ctx context.Context, fileID string) (string, error) {
	if key, ok := strings.CutPrefix(fileID, bucketKeyPrefix); ok {
		if r.store == nil {
			return "", fmt.Errorf("bucket photo %s but object store is not configured", fileID)
		}
		return r.store.PresignGet(ctx, key)
	}
	return r.platform.GetFileURL(ctx, fileID)
}
