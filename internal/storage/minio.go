package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// maxPresignTTL is the longest lifetime S3 accepts for a presigned URL.
const maxPresignTTL = 7 * 24 * time.Hour

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicURL, when set, is used to build plain object links instead of
	// presigned ones.
	PublicURL string
	LinkTTL   time.Duration
}

func (c MinIOConfig) Complete() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// MinIO stores uploads in an S3-compatible bucket. A folder is a key
// prefix made unique per submission.
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
	linkTTL   time.Duration
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if !cfg.Complete() {
		return nil, ErrNotConfigured
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	// Sanity check: bucket must exist.
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("minio bucket does not exist: %s", cfg.Bucket)
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 || ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}

	return &MinIO{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		linkTTL:   ttl,
	}, nil
}

// folderPrefix keeps the human folder name and adds a uuid so same-name
// folders never share objects.
func folderPrefix(name string) string {
	return cleanSegment(name) + "/" + uuid.NewString() + "/"
}

// cleanSegment turns an arbitrary name into a single key segment.
func cleanSegment(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}

func (m *MinIO) CreateFolder(ctx context.Context, name string) (Folder, error) {
	prefix := folderPrefix(name)

	// Zero-byte marker so the folder is visible before anything lands in it.
	_, err := m.client.PutObject(ctx, m.bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return Folder{}, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return Folder{ID: prefix, Name: name}, nil
}

func (m *MinIO) Upload(ctx context.Context, folder Folder, f File) (Object, error) {
	// The short id keeps two attachments with the same filename apart.
	key := folder.ID + uuid.NewString()[:8] + "-" + cleanSegment(path.Base(f.Name))

	size := f.Size
	if size <= 0 {
		size = -1
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, f.Body, size, minio.PutObjectOptions{
		ContentType: f.ContentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload %q: %w", f.Name, err)
	}

	link, err := m.link(ctx, key)
	if err != nil {
		return Object{}, err
	}
	return Object{ID: key, Name: f.Name, Link: link}, nil
}

func (m *MinIO) link(ctx context.Context, key string) (string, error) {
	if m.publicURL != "" {
		return m.publicURL + "/" + m.bucket + "/" + escapeKey(key), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.linkTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %q: %w", key, err)
	}
	return u.String(), nil
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (m *MinIO) RemoveFolder(ctx context.Context, folder Folder) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    folder.ID,
		Recursive: true,
	})

	var firstErr error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return firstErr
}

func (m *MinIO) Check(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket does not exist: %s", m.bucket)
	}
	return nil
}
