// Package blob stores message attachments in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/theBrainly/chatgpt-clone/internal/util"
)

// MaxUploadSize caps attachment uploads at 10MB.
const MaxUploadSize = 10 * 1024 * 1024

// allowedTypes are the MIME types attachments may carry.
var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// AllowedType reports whether mimeType may be uploaded.
func AllowedType(mimeType string) bool {
	return allowedTypes[mimeType]
}

// Upload is the stored-attachment descriptor returned to clients.
type Upload struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
}

// Config holds object storage connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads attachments to a MinIO/S3 bucket.
type Service struct {
	client *minio.Client
	bucket string
	public string
}

// NewService creates the storage client and ensures the bucket exists.
func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &Service{
		client: client,
		bucket: cfg.Bucket,
		public: fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

// Store validates and uploads one attachment, returning its descriptor.
// Objects are keyed by owner so per-user cleanup stays a prefix listing.
func (s *Service) Store(ctx context.Context, userID, filename, mimeType string, data []byte) (Upload, error) {
	if len(data) > MaxUploadSize {
		return Upload{}, fmt.Errorf("file too large: %d bytes (max %d)", len(data), MaxUploadSize)
	}
	if !AllowedType(mimeType) {
		return Upload{}, fmt.Errorf("file type not supported: %s", mimeType)
	}

	id := util.NewID("file")
	key := path.Join(userID, id+path.Ext(filename))

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return Upload{}, fmt.Errorf("upload object: %w", err)
	}

	kind := "document"
	if strings.HasPrefix(mimeType, "image/") {
		kind = "image"
	}

	return Upload{
		ID:       id,
		URL:      s.public + "/" + key,
		Name:     filename,
		Size:     int64(len(data)),
		Type:     kind,
		MimeType: mimeType,
	}, nil
}
