package services

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioService archives raw billing webhook payloads for audit and replay.
type MinioService interface {
	ArchiveWebhook(ctx context.Context, eventName, eventID string, body []byte, receivedAt time.Time) (string, error)
	EnsureBucketExists(ctx context.Context) error
}

type minioClient struct {
	client *minio.Client
	bucket string
}

func NewMinioService(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioClient{client: client, bucket: bucket}, nil
}

func (m *minioClient) ArchiveWebhook(ctx context.Context, eventName, eventID string, body []byte, receivedAt time.Time) (string, error) {
	key := webhookObjectKey(eventName, eventID, receivedAt)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"event-name": eventName,
			"event-id":   eventID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive webhook %s: %w", eventID, err)
	}
	return key, nil
}

func (m *minioClient) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func webhookObjectKey(eventName, eventID string, receivedAt time.Time) string {
	if eventName == "" {
		eventName = "unknown"
	}
	return fmt.Sprintf("lemonsqueezy/%s/%s/%s.json",
		receivedAt.UTC().Format("2006/01/02"),
		unsafeKeyChars.ReplaceAllString(eventName, "_"),
		unsafeKeyChars.ReplaceAllString(eventID, "_"))
}
