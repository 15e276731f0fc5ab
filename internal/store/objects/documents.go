// Package objects stores policy documents in an S3-compatible bucket.
package objects

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/platform/ids"
)

type Config struct {
	Endpoint  string // host:port, scheme optional
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
	// URLExpiry bounds the presigned download URL; 0 returns a plain object URL.
	URLExpiry time.Duration
}

type DocumentStore struct {
	client *minio.Client
	cfg    Config
	log    *slog.Logger
}

var _ core.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore connects and makes sure the bucket exists.
func NewDocumentStore(ctx context.Context, cfg Config, log *slog.Logger) (*DocumentStore, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	s := &DocumentStore{client: client, cfg: cfg, log: log}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("document store ready", "endpoint", endpoint, "bucket", cfg.Bucket)
	return s, nil
}

func (s *DocumentStore) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("documents.bucketExists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("documents.makeBucket %s: %w", s.cfg.Bucket, err)
	}
	s.log.Info("created bucket", "bucket", s.cfg.Bucket)
	return nil
}

// Put uploads r under a fresh key and returns a URL for it.
func (s *DocumentStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	key := ObjectKey(time.Now().UTC(), ids.New(), name)

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("documents.putObject: %w", err)
	}

	if s.cfg.URLExpiry > 0 {
		u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.URLExpiry, url.Values{})
		if err != nil {
			return "", fmt.Errorf("documents.presign: %w", err)
		}
		return u.String(), nil
	}

	return s.client.EndpointURL().JoinPath(s.cfg.Bucket, key).String(), nil
}

// Ping checks the bucket is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	return err
}

// ObjectKey places documents under a date prefix and strips any directory
// parts from the client-supplied name.
func ObjectKey(now time.Time, id, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document"
	}
	return fmt.Sprintf("documents/%s/%s-%s", now.Format("2006/01/02"), id, base)
}
