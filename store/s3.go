package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roessland/wearabledump/dump"
)

// ObjectStore uploads one object
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// S3Config describes an S3-compatible bucket (AWS, R2, MinIO)
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
}

// Enabled reports whether a bucket is configured
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// S3Store stores objects via the S3 API
type S3Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewS3Store constructs the storage adapter.
func NewS3Store(cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	useSSL := !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "http://")
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       useSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, logger: logger.With("component", "store.s3")}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// Put uploads data under key
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: len(data) < 5*1024*1024,
	})
	if err != nil {
		return err
	}
	s.logger.Debug("uploaded object", "bucket", s.bucket, "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// MirrorSink saves through a primary sink and then uploads the same record
// to an object store. Upload failures are logged and never fail the save.
type MirrorSink struct {
	primary dump.Sink
	objects ObjectStore
	prefix  string
	logger  dump.Logger
}

// NewMirrorSink wraps primary
func NewMirrorSink(primary dump.Sink, objects ObjectStore, prefix string, logger dump.Logger) *MirrorSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MirrorSink{
		primary: primary,
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
	}
}

// Save implements dump.Sink
func (m *MirrorSink) Save(ctx context.Context, record any, fileName string) (string, error) {
	savedPath, err := m.primary.Save(ctx, record, fileName)
	if err != nil {
		return "", err
	}

	data, err := Encode(record)
	if err != nil {
		m.logger.Warn("mirror upload skipped", "file", fileName, "error", err)
		return savedPath, nil
	}

	key := fileName
	if m.prefix != "" {
		key = path.Join(m.prefix, fileName)
	}
	// The primary copy exists; a cancelled run still gets its mirror
	if err := m.objects.Put(context.WithoutCancel(ctx), key, data, "application/json"); err != nil {
		m.logger.Warn("mirror upload failed", "key", key, "error", err)
		return savedPath, nil
	}

	m.logger.Info("record mirrored", "key", key)
	return savedPath, nil
}
