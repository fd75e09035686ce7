package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignTTL = 15 * time.Minute

type Storage struct {
	client     *minio.Client
	bucketName string
}

func NewStorage(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// MediaKindFor maps an upload content type to a media kind.
func MediaKindFor(contentType string) (models.MediaKind, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo, nil
	}
	return "", fmt.Errorf("content type %s not allowed: %w", contentType, models.ErrInvalid)
}

// ObjectKey namespaces uploads by owner and keeps only the base file name.
func ObjectKey(ownerID uuid.UUID, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s-%s", ownerID, uuid.NewString(), path.Base(fileName))
}

// PresignUpload returns a PUT url for the object and the descriptor clients
// attach to posts and stories once the upload finishes.
func (s *Storage) PresignUpload(ctx context.Context, objectKey, contentType string) (string, models.Media, error) {
	kind, err := MediaKindFor(contentType)
	if err != nil {
		return "", models.Media{}, err
	}

	presignedURL, err := s.client.PresignedPutObject(ctx, s.bucketName, objectKey, presignTTL)
	if err != nil {
		return "", models.Media{}, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedURL.String(), models.Media{URL: s.ObjectURL(objectKey), Kind: kind}, nil
}

func (s *Storage) ObjectURL(objectKey string) string {
	return s.client.EndpointURL().JoinPath(s.bucketName, objectKey).String()
}

func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}
