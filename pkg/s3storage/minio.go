package s3storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient wraps the MinIO client for voice recording storage
type MinIOClient struct {
	client     *minio.Client
	bucketName string
	now        func() time.Time
}

// NewMinIOClient creates a new MinIO client and ensures bucket exists
func NewMinIOClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	mc := &MinIOClient{
		client:     client,
		bucketName: bucketName,
		now:        time.Now,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mc.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return mc, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// UploadRecording stores a captured voice note and returns its object name.
// size may be -1 when unknown.
func (m *MinIOClient) UploadRecording(ctx context.Context, data io.Reader, size int64, audioFormat string) (string, error) {
	objectName := RecordingObjectName(m.now(), uuid.New(), audioFormat)

	_, err := m.client.PutObject(
		ctx,
		m.bucketName,
		objectName,
		data,
		size,
		minio.PutObjectOptions{
			ContentType: ContentType(audioFormat),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to minio: %w", err)
	}

	return objectName, nil
}

// GetPresignedURL returns a time-limited download link for objectName
func (m *MinIOClient) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return u.String(), nil
}

// DeleteRecording removes a stored recording
func (m *MinIOClient) DeleteRecording(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// RecordingObjectName formats recordings/YYYY/MM/DD/<id>.<format>
func RecordingObjectName(at time.Time, id uuid.UUID, audioFormat string) string {
	audioFormat = strings.TrimPrefix(strings.ToLower(audioFormat), ".")
	if audioFormat == "" {
		audioFormat = "m4a"
	}
	return path.Join(
		"recordings",
		fmt.Sprintf("%d", at.Year()),
		fmt.Sprintf("%02d", int(at.Month())),
		fmt.Sprintf("%02d", at.Day()),
		id.String()+"."+audioFormat,
	)
}

func ContentType(audioFormat string) string {
	switch strings.TrimPrefix(strings.ToLower(audioFormat), ".") {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "oga":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	default:
		return "audio/mp4"
	}
}

// ArchiveFile uploads a local recording and returns a presigned link to it
func (m *MinIOClient) ArchiveFile(ctx context.Context, localPath string, expiry time.Duration) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat recording: %w", err)
	}

	objectName, err := m.UploadRecording(ctx, f, info.Size(), path.Ext(localPath))
	if err != nil {
		return "", err
	}
	return m.GetPresignedURL(ctx, objectName, expiry)
}
