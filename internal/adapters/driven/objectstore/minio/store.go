// Package minio implements the ObjectStore port on any S3-compatible
// endpoint via the MinIO client.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ObjectStore = (*Store)(nil)

// Config holds object store configuration.
type Config struct {
	// Endpoint is the S3 host, without scheme.
	Endpoint string

	// AccessKey and SecretKey are the static credentials.
	AccessKey string
	SecretKey string

	// Bucket is the destination bucket. Must already exist.
	Bucket string

	// UseSSL selects https. On for anything that is not a local
	// development endpoint.
	UseSSL bool
}

// Store uploads replicated content to an S3-compatible bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore creates the object store client.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: endpoint and bucket are required", domain.ErrInvalidInput)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object store client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Put stores the content stream under the request key. Re-uploading a
// key replaces the object.
func (s *Store) Put(ctx context.Context, req driven.PutRequest, content io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, req.Key, content, req.Size, minio.PutObjectOptions{
		ContentType:  req.ContentType,
		UserMetadata: req.Metadata,
	})
	if err != nil {
		return wrapError("put "+req.Key, err)
	}
	return nil
}

// Remove deletes the object under key. Removing a missing object is
// not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return wrapError("remove "+key, err)
	}
	return nil
}

// Ping verifies the bucket exists and is reachable.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return wrapError("ping", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist: %w", s.bucket, domain.ErrPermanent)
	}
	return nil
}

// wrapError classifies an S3 failure. Auth failures are permanent;
// everything else, including network trouble, is worth retrying.
func wrapError(op string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %v: %w", op, err, domain.ErrAuthentication)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPermanent)
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientStorage)
}
