// Package export copies a session's download bundle to S3-compatible
// object storage.
package export

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/bundle"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// Object describes an uploaded bundle.
type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag,omitempty"`
}

// S3 uploads bundles with the MinIO client.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3(cfg Config) (*S3, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("export endpoint is empty")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("export bucket is empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

// Key is the object name for a session's bundle exported at t.
func (s *S3) Key(sessionID, filename string, t time.Time) string {
	stamp := t.UTC().Format("20060102T150405Z")
	return path.Join(s.prefix, sessionID, stamp+"-"+filename)
}

// Export uploads p under the session's prefix.
func (s *S3) Export(ctx context.Context, sessionID string, p *bundle.Payload) (Object, error) {
	key := s.Key(sessionID, p.Filename, s.now())
	if _, err := p.Reader().Seek(0, 0); err != nil {
		return Object{}, fmt.Errorf("rewind bundle: %w", err)
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, p.Reader(), p.Size, minio.PutObjectOptions{
		ContentType: p.ContentType,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Object{}, ctx.Err()
		}
		return Object{}, apperr.Wrap(apperr.EngineFailure, err, "export to object storage failed").WithField("bucket", s.bucket)
	}
	return Object{Bucket: info.Bucket, Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}
