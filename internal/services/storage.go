package services

import (
	"bytes"
	"fmt"

	"magnifiq/internal/ai"
	"magnifiq/internal/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// StorageService stores generated image assets in S3-compatible storage
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	baseURL  string
}

// NewStorageService creates a storage service from explicit configuration
func NewStorageService(cfg config.S3Config) (*StorageService, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 configuration missing")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:   aws.String(cfg.Region),
		Endpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		bucket:   cfg.Bucket,
		baseURL:  fmt.Sprintf("https://%s", cfg.Bucket),
	}, nil
}

// UploadGeneratedImage uploads one generated image and returns its public
// URL. Keys are grouped per connection and product.
func (s *StorageService) UploadGeneratedImage(connectionID, productID uuid.UUID, payload *ai.ImagePayload) (string, error) {
	key := fmt.Sprintf("%s/generations/%s/%s.%s", connectionID, productID, uuid.New(), payload.Extension)

	contentType := payload.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload.Data),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload generated image: %w", err)
	}

	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
