package avatar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/util"
)

const maxAvatarSize = 2 << 20 // 2 MiB

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Service stores profile avatars in an S3-compatible bucket.
type Service struct {
	client *minio.Client
	bucket string
}

func NewService(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(setupCtx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check avatar bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(setupCtx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create avatar bucket: %w", err)
		}
	}
	return &Service{client: client, bucket: bucket}, nil
}

// Upload stores a new avatar for userID and returns its object path. The
// object name is randomized so a stale browser cache never shows an old
// avatar after a change.
func (s *Service) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := allowedContentTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported avatar content type %q", contentType)
	}
	if size <= 0 || size > maxAvatarSize {
		return "", fmt.Errorf("avatar size must be between 1 byte and %d bytes", maxAvatarSize)
	}

	objectName := fmt.Sprintf("avatars/%s/%s%s", userID, util.NewID("img"), ext)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return "/" + s.bucket + "/" + objectName, nil
}

// Remove deletes a previously uploaded avatar object. Paths that do not
// point into the avatar bucket are ignored.
func (s *Service) Remove(ctx context.Context, objectPath string) error {
	prefix := "/" + s.bucket + "/"
	if !strings.HasPrefix(objectPath, prefix) {
		return nil
	}
	objectName := strings.TrimPrefix(objectPath, prefix)
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove avatar: %w", err)
	}
	return nil
}
