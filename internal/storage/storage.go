// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/metrics"
	"rfp-pipeline/internal/models"
)

// ObjectClient is the blob operations surface the store needs from S3.
type ObjectClient interface {
	Bucket() string
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Store saves and retrieves attachment blobs. Uploads go to S3 when it is
// configured and fall back to the local directory when it is not, or when
// an individual upload fails. Save never returns an error: a storage
// failure degrades to metadata describing it, so ingestion keeps going.
type Store struct {
	s3       ObjectClient // nil when S3 is not configured
	region   string
	localDir string
	log      logger.Logger
}

func NewStore(s3 ObjectClient, region, localDir string, log logger.Logger) *Store {
	if localDir == "" {
		localDir = filepath.Join("storage", "uploads")
	}
	return &Store{s3: s3, region: region, localDir: localDir, log: log}
}

// Save persists one attachment and returns its metadata. On failure the
// returned metadata carries the error and a nil StorageURL; the caller
// records it and moves on.
func (s *Store) Save(ctx context.Context, content []byte, filename, contentType string) models.AttachmentMeta {
	meta := models.AttachmentMeta{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
	}
	if len(content) == 0 {
		meta.Error = "attachment has no content"
		metrics.AttachmentsSaved.WithLabelValues("failed").Inc()
		return meta
	}

	safeName := SanitizeFilename(filename)

	if s.s3 != nil {
		key := objectKey(safeName)
		if err := s.s3.PutObject(ctx, key, content, contentType); err == nil {
			location := s.objectURL(key)
			meta.StorageURL = &location
			metrics.AttachmentsSaved.WithLabelValues("s3").Inc()
			return meta
		} else {
			s.log.Warn("S3 upload failed, falling back to local storage", map[string]interface{}{
				"filename": safeName,
				"error":    err.Error(),
			})
		}
	}

	path, err := s.writeLocal(safeName, content)
	if err != nil {
		s.log.Error("Local attachment write failed", map[string]interface{}{
			"filename": safeName,
			"error":    err.Error(),
		})
		meta.Error = err.Error()
		metrics.AttachmentsSaved.WithLabelValues("failed").Inc()
		return meta
	}

	meta.StorageURL = &path
	metrics.AttachmentsSaved.WithLabelValues("local").Inc()
	return meta
}

// Retrieve loads a previously saved attachment. The locator decides the
// backend: our own S3 URLs go back through S3, anything else is read as a
// local path.
func (s *Store) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, fmt.Errorf("attachment locator is empty")
	}

	if s.s3 != nil {
		prefix := s.urlPrefix()
		if strings.HasPrefix(locator, prefix) {
			key, err := url.PathUnescape(strings.TrimPrefix(locator, prefix))
			if err != nil {
				return nil, fmt.Errorf("malformed attachment locator %q: %w", locator, err)
			}
			return s.s3.GetObject(ctx, key)
		}
	}

	content, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %q: %w", locator, err)
	}
	return content, nil
}

func (s *Store) writeLocal(safeName string, content []byte) (string, error) {
	if err := os.MkdirAll(s.localDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.localDir, fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString(), safeName))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return path, nil
}

func (s *Store) urlPrefix() string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.s3.Bucket(), s.region)
}

func (s *Store) objectURL(key string) string {
	return s.urlPrefix() + url.PathEscape(key)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SanitizeFilename makes a filename safe for object keys and local paths.
// Unsafe characters become hyphens, the result is capped at 240 bytes,
// and an empty result gets a timestamped placeholder name.
func SanitizeFilename(name string) string {
	safe := unsafeFilenameChars.ReplaceAllString(name, "-")
	if len(safe) > 240 {
		safe = safe[:240]
	}
	if safe == "" {
		safe = fmt.Sprintf("file-%d", time.Now().UnixMilli())
	}
	return safe
}

func objectKey(safeName string) string {
	return fmt.Sprintf("attachments/%d-%s-%s", time.Now().UnixMilli(), uuid.NewString(), safeName)
}
