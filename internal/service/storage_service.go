package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	maxAttachmentSize    = 10 * 1024 * 1024 // 10 MB
	presignedURLTTL      = 15 * time.Minute
	attachmentPathPrefix = "attachments"
)

var (
	ErrFileTooBig           = errors.New("file size exceeds 10MB limit")
	ErrInvalidFileType      = errors.New("invalid file type")
	ErrBucketCreationFailed = errors.New("failed to create storage bucket")
	ErrUploadFailed         = errors.New("failed to upload file")
	ErrDeleteFailed         = errors.New("failed to delete file")
	ErrURLGenerationFailed  = errors.New("failed to generate presigned URL")
	ErrForeignObjectKey     = errors.New("object key does not belong to this task")

	allowedAttachmentTypes = map[string]string{
		"image/jpeg":         ".jpg",
		"image/png":          ".png",
		"image/gif":          ".gif",
		"application/pdf":    ".pdf",
		"text/plain":         ".txt",
		"text/csv":           ".csv",
		"application/zip":    ".zip",
		"application/msword": ".doc",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	}
)

// StorageService is the object-storage boundary for task attachments.
type StorageService interface {
	// UploadAttachment stores a file under the task's namespace and returns
	// the object key.
	UploadAttachment(ctx context.Context, taskID uint, file io.Reader, fileSize int64, contentType string) (string, error)

	// DeleteAttachment removes an object. The key must belong to the task.
	DeleteAttachment(ctx context.Context, taskID uint, objectKey string) error

	// GenerateAttachmentURL returns a short-lived presigned GET URL.
	GenerateAttachmentURL(ctx context.Context, objectKey string) (string, error)
}

// MinIOStorageService implements StorageService against MinIO or any
// S3-compatible store.
type MinIOStorageService struct {
	client     *minio.Client
	bucketName string

	// Bucket creation is deferred to first use so an unreachable store does
	// not block process startup.
	bucketOnce sync.Once
	bucketErr  error
}

func NewMinIOStorageService(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOStorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStorageService{client: client, bucketName: bucketName}, nil
}

func (s *MinIOStorageService) ensureBucketExists(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.bucketErr = fmt.Errorf("%w: check bucket existence: %v", ErrBucketCreationFailed, err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
				s.bucketErr = fmt.Errorf("%w: create bucket: %v", ErrBucketCreationFailed, err)
			}
		}
	})
	return s.bucketErr
}

func (s *MinIOStorageService) UploadAttachment(ctx context.Context, taskID uint, file io.Reader, fileSize int64, contentType string) (string, error) {
	if fileSize > maxAttachmentSize {
		return "", ErrFileTooBig
	}
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	ext, allowed := allowedAttachmentTypes[normalized]
	if !allowed {
		return "", ErrInvalidFileType
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return "", err
	}

	objectKey := attachmentObjectKey(taskID, ext)
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, file, fileSize, minio.PutObjectOptions{
		ContentType: normalized,
		UserMetadata: map[string]string{
			"Task-ID":     fmt.Sprintf("%d", taskID),
			"Uploaded-At": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return objectKey, nil
}

func (s *MinIOStorageService) DeleteAttachment(ctx context.Context, taskID uint, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return nil
	}
	if !objectKeyBelongsToTask(taskID, objectKey) {
		return ErrForeignObjectKey
	}
	if err := s.ensureBucketExists(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

func (s *MinIOStorageService) GenerateAttachmentURL(ctx context.Context, objectKey string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("%w: empty object key", ErrURLGenerationFailed)
	}
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucketName, objectKey, presignedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLGenerationFailed, err)
	}
	return presignedURL.String(), nil
}

func attachmentObjectKey(taskID uint, ext string) string {
	return fmt.Sprintf("%s/task-%d/%s%s", attachmentPathPrefix, taskID, uuid.New().String(), ext)
}

// objectKeyBelongsToTask rejects keys outside the task's namespace, including
// path traversal attempts that would clean to a different prefix.
func objectKeyBelongsToTask(taskID uint, objectKey string) bool {
	cleaned := path.Clean(objectKey)
	if cleaned != objectKey {
		return false
	}
	prefix := fmt.Sprintf("%s/task-%d/", attachmentPathPrefix, taskID)
	return strings.HasPrefix(cleaned, prefix)
}
